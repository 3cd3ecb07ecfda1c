package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daviddao/mailtriage/internal/types"
)

// fakeGenerator returns a canned result and records what it was asked.
type fakeGenerator struct {
	result  Result
	calls   int
	prompts []string
	opts    []Options
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, opts Options) Result {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	return f.result
}

func newClassifier(res Result) (*Classifier, *fakeGenerator) {
	gen := &fakeGenerator{result: res}
	return New(gen, zap.NewNop()), gen
}

func TestPaymentKeywordOverridesModel(t *testing.T) {
	for _, kw := range PaymentKeywords {
		t.Run(kw, func(t *testing.T) {
			c, gen := newClassifier(Succeeded("Spam"))
			text := "Subject: Hello\n\nSomething about " + strings.ToUpper(kw) + " here"
			assert.Equal(t, types.CategoryBilling, c.Classify(context.Background(), text))
			assert.Equal(t, 0, gen.calls, "model must not be called when a keyword matches")
		})
	}
}

func TestBillPaymentScenario(t *testing.T) {
	c, _ := newClassifier(Succeeded("Spam"))
	d := c.Decide(context.Background(), "Your bill payment was received")
	assert.Equal(t, types.CategoryBilling, d.Category)
	assert.Equal(t, ReasonKeyword, d.Reason)
}

func TestMeetingScenario(t *testing.T) {
	c, gen := newClassifier(Succeeded("Meeting / Calendar Event"))
	got := c.Classify(context.Background(), "Subject: Meeting at 3pm\n\nTeam meeting at 3pm")
	assert.Equal(t, types.CategoryMeeting, got)
	require.Equal(t, 1, gen.calls)
	assert.True(t, strings.HasSuffix(gen.prompts[0], "Email content:\nSubject: Meeting at 3pm\n\nTeam meeting at 3pm"))
}

func TestModelCalledWithClassificationOptions(t *testing.T) {
	c, gen := newClassifier(Succeeded("Personal"))
	c.Classify(context.Background(), "Subject: hi\n\nsee you on sunday")
	require.Len(t, gen.opts, 1)
	opts := gen.opts[0]
	assert.Equal(t, 0.3, opts.Temperature)
	assert.Equal(t, 250, opts.TopK)
	assert.Equal(t, 1.0, opts.TopP)
	assert.Equal(t, 50, opts.MaxTokens)
	assert.Equal(t, []string{"\n\nHuman:", "\n", "Assistant:"}, opts.StopSequences)
}

func TestSingleCategoryInCompletion(t *testing.T) {
	for _, cat := range types.Categories {
		if cat == types.CategoryBilling {
			continue
		}
		t.Run(string(cat), func(t *testing.T) {
			c, _ := newClassifier(Succeeded("  The answer is " + string(cat) + ".  "))
			assert.Equal(t, cat, c.Classify(context.Background(), "Subject: x\n\nhello"))
		})
	}
}

func TestNoCategoryInCompletionFallsBack(t *testing.T) {
	c, _ := newClassifier(Succeeded("I am not sure"))
	d := c.Decide(context.Background(), "Subject: x\n\nhello")
	assert.Equal(t, types.CategoryOther, d.Category)
	assert.Equal(t, ReasonNoMatch, d.Reason)
	assert.Equal(t, "I am not sure", d.Completion)
}

func TestMatchIsCaseSensitive(t *testing.T) {
	c, _ := newClassifier(Succeeded("spam"))
	assert.Equal(t, types.CategoryOther, c.Classify(context.Background(), "Subject: x\n\nhello"))
}

func TestEarliestDeclaredCategoryWins(t *testing.T) {
	c, _ := newClassifier(Succeeded("Spam or maybe Action Required"))
	assert.Equal(t, types.CategoryActionRequired, c.Classify(context.Background(), "Subject: x\n\nhello"))

	// "Spam" is declared before "Personal" regardless of position in the text.
	c, _ = newClassifier(Succeeded("Personal, Spam"))
	assert.Equal(t, types.CategorySpam, c.Classify(context.Background(), "Subject: x\n\nhello"))
}

func TestModelFailureFallsBack(t *testing.T) {
	c, _ := newClassifier(Failed(errors.New("connection reset")))
	d := c.Decide(context.Background(), "Subject: x\n\nhello")
	assert.Equal(t, types.CategoryOther, d.Category)
	assert.Equal(t, ReasonModelFailed, d.Reason)

	c, _ = newClassifier(Failed(nil))
	assert.Equal(t, types.CategoryOther, c.Classify(context.Background(), "Subject: x\n\nhello"))
}

func TestNilGeneratorFallsBack(t *testing.T) {
	c := New(nil, nil)
	assert.Equal(t, types.CategoryOther, c.Classify(context.Background(), "Subject: x\n\nhello"))
	assert.Equal(t, types.CategoryBilling, c.Classify(context.Background(), "invoice attached"))
}

func TestClassifyIsStableOnSameText(t *testing.T) {
	c, _ := newClassifier(Succeeded("Updates / Notifications"))
	text := "Subject: Release notes\n\nVersion 2 is out"
	first := c.Classify(context.Background(), text)
	second := c.Classify(context.Background(), text)
	assert.Equal(t, first, second)
	assert.True(t, types.IsValidCategory(first))
}

func TestGeneratorFunc(t *testing.T) {
	var got string
	gen := GeneratorFunc(func(_ context.Context, prompt string, _ Options) Result {
		got = prompt
		return Succeeded("Reports / Summaries")
	})
	c := New(gen, nil)
	assert.Equal(t, types.CategoryReports, c.Classify(context.Background(), "Subject: Weekly\n\nnumbers"))
	assert.Contains(t, got, "Weekly")
}

func TestBuildPromptListsCategoriesAndKeywords(t *testing.T) {
	p := BuildPrompt("Subject: s\n\nb")
	for _, c := range types.Categories {
		assert.Contains(t, p, string(c))
	}
	assert.Contains(t, p, "Payment-Related Keywords: payment, transaction, bill, invoice, receipt, successful, paid, credit, debit")
	assert.Contains(t, p, "RESPOND WITH ONLY THE CATEGORY NAME")
	assert.Contains(t, p, "- 'Team meeting at 3pm' → 'Meeting / Calendar Event'")
	assert.Contains(t, p, "6. Payment confirmations")
}
