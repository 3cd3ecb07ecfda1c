package classify

import (
	"strconv"
	"strings"

	"github.com/daviddao/mailtriage/internal/types"
)

// PaymentKeywords force the Billing / Invoice category when present.
var PaymentKeywords = []string{
	"payment", "transaction", "bill", "invoice", "receipt",
	"successful", "paid", "credit", "debit",
}

type example struct {
	phrase   string
	category types.Category
}

var examples = []example{
	{"Your account needs immediate attention", types.CategoryPhishing},
	{"Congratulations on your job promotion!", types.CategoryJobs},
	{"50% off sale ends today!", types.CategoryPromotional},
	{"Team meeting at 3pm", types.CategoryMeeting},
	{"Transaction alert: Payment successful", types.CategoryBilling},
	{"Your bill payment was received", types.CategoryBilling},
}

var rules = []string{
	"DO NOT provide any explanation, just output the exact category name",
	"Messages about account suspension, security alerts, or urgent actions = '" + string(types.CategoryPhishing) + "'",
	"Words like 'congratulations', 'promotion', 'achievement' for career/job = '" + string(types.CategoryJobs) + "'",
	"Marketing, sales, discounts, limited time offers = '" + string(types.CategoryPromotional) + "'",
	"If unsure about sender authenticity for urgent messages = '" + string(types.CategoryPhishing) + "'",
	"Payment confirmations, bill payments, transaction alerts = '" + string(types.CategoryBilling) + "'",
}

// BuildPrompt returns the classification instruction for text.
func BuildPrompt(text string) string {
	names := make([]string, len(types.Categories))
	for i, c := range types.Categories {
		names[i] = string(c)
	}

	var b strings.Builder
	b.WriteString("You are an intelligent enterprise email classifier specializing in security and content analysis. ")
	b.WriteString("Your task is to classify the given email into ONLY ONE of the following categories:\n")
	b.WriteString(strings.Join(names, ", "))
	b.WriteString("\n\nSTRICT CLASSIFICATION RULES:\n")
	for i, r := range rules {
		b.WriteString(strconv.Itoa(i+1) + ". " + r + "\n")
	}
	b.WriteString("\nExamples:\n")
	for _, ex := range examples {
		b.WriteString("- '" + ex.phrase + "' → '" + string(ex.category) + "'\n")
	}
	b.WriteString("\nPayment-Related Keywords: ")
	b.WriteString(strings.Join(PaymentKeywords, ", "))
	b.WriteString("\n\nDO NOT EXPLAIN YOUR CHOICE. RESPOND WITH ONLY THE CATEGORY NAME.\n\n")
	b.WriteString("Email content:\n")
	b.WriteString(text)
	return b.String()
}

