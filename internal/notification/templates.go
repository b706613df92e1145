package notification

import (
	"bytes"
	"fmt"
	"text/template"
)

var templates = map[string]*template.Template{
	"listing.sold":    parse("listing.sold", `Your {{.item}} x{{.quantity}} sold for {{.price}}.`),
	"listing.expired": parse("listing.expired", `Your listing of {{.item}} x{{.quantity}} expired. The item was returned.`),
	"order.fulfilled": parse("order.fulfilled", `Your buy order for {{.item}} x{{.quantity}} was filled for {{.price}}.`),
	"order.expired":   parse("order.expired", `Your buy order for {{.item}} expired. {{.refund}} was refunded.`),
	"returns.pending": parse("returns.pending", `You have {{.count}} items waiting. Claim them from the market.`),
	"live.announce":   parse("live.announce", `Live auction: {{.item}} x{{.quantity}} for {{.price}}!`),
}

func parse(name, text string) *template.Template {
	return template.Must(template.New(name).Option("missingkey=zero").Parse(text))
}

// Render turns a message key and its params into player-facing text.
// Unknown keys render as the key itself.
func Render(key string, params map[string]string) (string, error) {
	tmpl, ok := templates[key]
	if !ok {
		return key, nil
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("render %s: %w", key, err)
	}
	return buf.String(), nil
}
