package providers

import (
	"context"
	"fmt"
	"strings"
)

const delegateSystem = `You classify short user messages from a university
messaging channel into exactly one category. Reply with the category name
only, lowercase, no punctuation and no explanation. If none fits, reply
"general".`

// DelegateClassifier implements the classifier's delegated tier on top of a
// Completer.
type DelegateClassifier struct {
	completer Completer
}

// NewDelegateClassifier wraps completer for category delegation.
func NewDelegateClassifier(completer Completer) *DelegateClassifier {
	return &DelegateClassifier{completer: completer}
}

// ClassifyText asks the model to pick one of categories for text. The raw
// answer is lowercased and trimmed; the classifier validates it against the
// category set.
func (d *DelegateClassifier) ClassifyText(ctx context.Context, text string, categories []string) (string, error) {
	prompt := fmt.Sprintf("Categories: %s\n\nMessage: %s\n\nCategory:",
		strings.Join(categories, ", "), text)
	out, err := d.completer.Complete(ctx, delegateSystem, prompt)
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(out)), nil
}
