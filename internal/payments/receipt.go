package payments

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/google/uuid"
)

// NewReceiptNumber returns a receipt number of the form RCP-YYYYMMDD-XXXXXXXX.
func NewReceiptNumber(t time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("RCP-%s-%s", t.UTC().Format("20060102"), suffix)
}

// ReceiptKey is the object storage key of a receipt.
func ReceiptKey(number string, t time.Time) string {
	return fmt.Sprintf("receipts/%s/%s.txt", t.UTC().Format("2006/01"), number)
}

// FormatAmount renders minor units as a decimal string, e.g. 1050 -> "10.50".
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// RenderReceipt produces the plain-text receipt stored for a completed payment.
func RenderReceipt(org, number string, p *models.Payment, payer *models.User, campaign *models.Campaign) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\nPAYMENT RECEIPT\n\n", org)
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Receipt number:\t%s\n", number)
	if p.CompletedAt != nil {
		fmt.Fprintf(w, "Date:\t%s\n", p.CompletedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	if payer != nil {
		fmt.Fprintf(w, "Received from:\t%s <%s>\n", payer.FullName(), payer.Email)
	}
	fmt.Fprintf(w, "Amount:\t%s %s\n", FormatAmount(p.Amount), strings.ToUpper(p.Currency))
	fmt.Fprintf(w, "Payment type:\t%s\n", p.Type)
	fmt.Fprintf(w, "Method:\t%s\n", p.Method)
	if p.ProviderRef != "" {
		fmt.Fprintf(w, "Reference:\t%s\n", p.ProviderRef)
	}
	if campaign != nil {
		fmt.Fprintf(w, "Campaign:\t%s\n", campaign.Title)
	}
	fmt.Fprintf(w, "Payment id:\t%s\n", p.ID)
	w.Flush()
	fmt.Fprintf(&buf, "\nThank you for supporting %s.\n", org)
	return buf.Bytes()
}
