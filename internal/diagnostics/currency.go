package diagnostics

import (
	"context"
	"strings"

	"github.com/GamechangerTeam/geokurs-form/internal/bitrix"

	"go.uber.org/zap"
)

// CurrencySource lists the currency codes the portal has enabled.
type CurrencySource interface {
	ListCurrencyCodes(ctx context.Context) ([]string, error)
}

// Normalizer decides which currency a deal should use. A requested
// currency the portal supports is applied as-is; anything else is
// converted into the base currency using the submitted rate.
type Normalizer struct {
	source CurrencySource
	base   string
	logger *zap.Logger
}

func NewNormalizer(source CurrencySource, baseCurrency string, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		source: source,
		base:   strings.ToUpper(baseCurrency),
		logger: logger.Named("currency"),
	}
}

// currencyAliases remap free-text currency labels onto ISO codes, checked
// in order against the lowercased label.
var currencyAliases = []struct {
	token string
	code  string
}{
	{"сом", "KGS"},
	{"som", "KGS"},
	{"kgs", "KGS"},
	{"руб", "RUB"},
	{"rub", "RUB"},
	{"доллар", "USD"},
	{"dollar", "USD"},
	{"usd", "USD"},
	{"$", "USD"},
	{"евро", "EUR"},
	{"euro", "EUR"},
	{"eur", "EUR"},
	{"тенге", "KZT"},
	{"tenge", "KZT"},
	{"kzt", "KZT"},
}

// Apply tags the rows with the resolved currency, scaling prices into the
// base currency when the requested one is not portal-supported. It returns
// the rows and the code the deal must be set to. The reconciler always
// works in submission currency; conversion happens here, once, last.
func (n *Normalizer) Apply(ctx context.Context, rows []bitrix.ProductRow, requested string, rateToBase float64) ([]bitrix.ProductRow, string) {
	supported := n.supportedCodes(ctx)

	code := n.resolveCode(requested, supported)
	if code != "" {
		out := make([]bitrix.ProductRow, len(rows))
		for i, row := range rows {
			row.Currency = code
			out[i] = row
		}
		return out, code
	}

	rate := dec(rateToBase)
	if !rate.IsPositive() {
		rate = dec(1)
	}

	out := make([]bitrix.ProductRow, len(rows))
	for i, row := range rows {
		row.Price = round2(dec(row.Price).Mul(rate))
		row.Currency = n.base
		out[i] = row
	}

	n.logger.Info("currency converted to base",
		zap.String("requested", requested),
		zap.String("base", n.base),
		zap.Float64("rate", rateToBase),
	)
	return out, n.base
}

// resolveCode returns a supported code for the label, or "" when the
// label cannot be mapped onto anything the portal accepts.
func (n *Normalizer) resolveCode(requested string, supported map[string]bool) string {
	code := strings.ToUpper(strings.TrimSpace(requested))
	if code != "" && supported[code] {
		return code
	}

	lower := strings.ToLower(requested)
	for _, alias := range currencyAliases {
		if strings.Contains(lower, alias.token) {
			if supported[alias.code] {
				return alias.code
			}
			break
		}
	}
	return ""
}

// supportedCodes is a best-effort read: a portal failure yields an empty
// set (forcing base conversion) rather than aborting the write path.
func (n *Normalizer) supportedCodes(ctx context.Context) map[string]bool {
	codes, err := n.source.ListCurrencyCodes(ctx)
	if err != nil {
		n.logger.Warn("currency list unavailable, converting to base", zap.Error(err))
		return map[string]bool{}
	}
	supported := make(map[string]bool, len(codes))
	for _, c := range codes {
		supported[strings.ToUpper(c)] = true
	}
	return supported
}
