package mailer

import (
	"bytes"
	"embed"
	"fmt"
	htmpl "html/template"
	"strings"
	texttpl "text/template"
	"time"

	"storefront/internal/events"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const OrderConfirmation = "order_confirmation"

// OrderConfirmationData feeds the order_confirmation templates.
type OrderConfirmationData struct {
	AppName   string
	Name      string
	OrderID   string
	ShortID   string
	Currency  string
	Subtotal  float64
	Tax       float64
	Shipping  float64
	Total     float64
	Items     []events.OrderLine
	CreatedAt time.Time
}

func NewOrderConfirmationData(appName string, evt events.OrderCreated) OrderConfirmationData {
	short := evt.OrderID
	if len(short) > 8 {
		short = short[len(short)-8:]
	}
	return OrderConfirmationData{
		AppName:   appName,
		Name:      evt.Name,
		OrderID:   evt.OrderID,
		ShortID:   strings.ToUpper(short),
		Currency:  evt.Currency,
		Subtotal:  evt.Subtotal,
		Tax:       evt.Tax,
		Shipping:  evt.Shipping,
		Total:     evt.Total,
		Items:     evt.Items,
		CreatedAt: evt.CreatedAt.UTC(),
	}
}

func defaultFn(fallback, value string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func baseFuncs() map[string]any {
	return map[string]any{
		"formatTime": func(t time.Time, layout string) string { return t.Format(layout) },
		"upper":      strings.ToUpper,
		"default":    defaultFn,
		"money":      func(v float64) string { return fmt.Sprintf("%.2f", v) },
	}
}

var (
	htmlFuncMap = htmpl.FuncMap(baseFuncs())
	textFuncMap = texttpl.FuncMap(baseFuncs())
)

func renderFile(filename string, isHTML bool, data any) (string, error) {
	var (
		buf bytes.Buffer
		err error
	)
	path := "templates/" + filename
	if isHTML {
		tpl, e := htmpl.New(filename).Funcs(htmlFuncMap).ParseFS(templateFS, path)
		if e != nil {
			return "", fmt.Errorf("parse html %q: %w", filename, e)
		}
		err = tpl.Execute(&buf, data)
	} else {
		tpl, e := texttpl.New(filename).Funcs(textFuncMap).ParseFS(templateFS, path)
		if e != nil {
			return "", fmt.Errorf("parse text %q: %w", filename, e)
		}
		err = tpl.Execute(&buf, data)
	}
	if err != nil {
		return "", fmt.Errorf("exec %q: %w", filename, err)
	}
	return buf.String(), nil
}

// Render renders <name>.subject.tmpl, <name>.text.tmpl and <name>.html.tmpl.
func Render(name string, data any) (subject, text, html string, err error) {
	if subject, err = renderFile(name+".subject.tmpl", false, data); err != nil {
		return "", "", "", err
	}
	if text, err = renderFile(name+".text.tmpl", false, data); err != nil {
		return "", "", "", err
	}
	if html, err = renderFile(name+".html.tmpl", true, data); err != nil {
		return "", "", "", err
	}
	return strings.TrimSpace(subject), text, html, nil
}
