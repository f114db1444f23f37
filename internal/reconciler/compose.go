package reconciler

import (
	"strings"

	"github.com/saravenpi/fieldpost/internal/i18n"
)

// OrderInquiry returns the subject and body a consumer sends a farm when
// asking about an order. productName may be empty.
func OrderInquiry(catalog *i18n.Catalog, productName, orderNumber string) (subject, body string) {
	vars := map[string]string{
		"product": strings.TrimSpace(productName),
		"order":   strings.TrimSpace(orderNumber),
	}

	if vars["product"] != "" {
		return catalog.Format("messages.order_subject_product", vars),
			catalog.Format("messages.order_body_product", vars)
	}
	return catalog.Format("messages.order_subject", vars),
		catalog.Format("messages.order_body", vars)
}
