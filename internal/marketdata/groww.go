package marketdata

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stock-data-ingest/internal/model"
)

const growwBaseURL = "https://api.groww.in/v1/live-data/ohlc"

// ohlcPattern is the strict grammar of the inline-object-as-string payload:
// "{open: 149.50,high: 150.50,low: 148.50,close: 149.50}".
var ohlcPattern = regexp.MustCompile(
	`^\{open:\s*([\d.]+),\s*high:\s*([\d.]+),\s*low:\s*([\d.]+),\s*close:\s*([\d.]+)\}$`,
)

// indiaZone stamps the snapshot candle with the local trading day.
var indiaZone = mustLoadLocation("Asia/Kolkata")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("IST", 5*3600+30*60)
	}
	return loc
}

// Groww is the real-time-snapshot adapter. It returns only the current OHLC
// values regardless of the requested interval and authenticates with a
// bearer token, exchanged via the TokenManager or taken directly from the
// data source credentials.
type Groww struct {
	client *client
	tokens *TokenManager
	logger zerolog.Logger
	now    func() time.Time
}

// NewGroww constructs the Groww snapshot adapter.
func NewGroww(tokens *TokenManager, logger zerolog.Logger) *Groww {
	l := logger.With().Str("component", "groww_provider").Logger()
	return &Groww{client: newClient(l), tokens: tokens, logger: l, now: time.Now}
}

func (p *Groww) Name() string { return "Groww" }

func (p *Groww) Supports(ds model.DataSource) bool {
	endpoint := strings.ToLower(ds.APIEndpoint)
	providerType := strings.ToLower(ds.ProviderType)
	name := strings.ToLower(ds.Name)
	return strings.Contains(endpoint, "groww.in") ||
		strings.Contains(endpoint, "grow") ||
		strings.Contains(providerType, "grow") ||
		strings.Contains(name, "grow")
}

type growwPayload struct {
	Status  string            `json:"status"`
	Payload map[string]string `json:"payload"`
	Error   string            `json:"error"`
	Message string            `json:"message"`
}

// Fetch retrieves the current snapshot. The interval is accepted but
// ignored; the result is surfaced as a single daily candle stamped with the
// current trading date.
func (p *Groww) Fetch(ctx context.Context, ds model.DataSource, req FetchRequest) (Response, error) {
	p.logger.Warn().Str("interval", string(req.Interval)).
		Msg("Groww OHLC endpoint returns real-time data only; interval is ignored")

	token, err := p.resolveToken(ctx, ds)
	if err != nil {
		return Response{}, err
	}

	exchangeSymbol := p.buildExchangeSymbol(req)
	segment := strings.ToUpper(strings.TrimSpace(req.Segment))
	if segment == "" {
		segment = classifySegment(req.Symbol)
	}
	endpoint := p.buildURL(ds, segment, exchangeSymbol)

	p.logger.Info().Str("exchange_symbol", exchangeSymbol).Str("segment", segment).
		Msg("fetching OHLC snapshot from Groww")

	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"X-API-VERSION": "1.0",
	}

	var payload growwPayload
	if err := p.client.getJSON(ctx, endpoint, ds.Timeout(), headers, &payload); err != nil {
		return Response{}, err
	}

	if !strings.EqualFold(payload.Status, "SUCCESS") {
		return Response{}, Errorf(CodeProviderPayload, "Groww returned error: %s - %s", payload.Error, payload.Message)
	}
	if len(payload.Payload) == 0 {
		return Response{}, Errorf(CodeProviderPayload, "Groww returned empty payload")
	}

	var ohlcString string
	for _, v := range payload.Payload {
		ohlcString = v
		break
	}

	candle, err := ParseSnapshotOHLC(ohlcString)
	if err != nil {
		return Response{}, err
	}

	key := p.now().In(indiaZone).Format("2006-01-02")
	return Response{Daily: map[string]RawCandle{key: candle}}, nil
}

// ParseSnapshotOHLC parses the inline OHLC string with the strict pattern.
// Volume is not provided by the snapshot endpoint and defaults to zero.
func ParseSnapshotOHLC(s string) (RawCandle, error) {
	matches := ohlcPattern.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return RawCandle{}, Errorf(CodeRecordParse, "failed to parse OHLC string: %s", s)
	}
	return RawCandle{
		Open:   matches[1],
		High:   matches[2],
		Low:    matches[3],
		Close:  matches[4],
		Volume: "0",
	}, nil
}

// resolveToken prefers the token exchange when key+secret are configured and
// otherwise falls back to a direct token stored on the data source.
func (p *Groww) resolveToken(ctx context.Context, ds model.DataSource) (string, error) {
	if p.tokens != nil && p.tokens.Configured() {
		token, err := p.tokens.AccessToken(ctx)
		if err != nil {
			return "", err
		}
		if token == "" {
			return "", Errorf(CodeTokenExchange, "key and secret are set but token exchange returned no token")
		}
		return token, nil
	}
	if token := strings.TrimSpace(ds.APIKey); token != "" {
		return token, nil
	}
	return "", Errorf(CodeCredentialMissing,
		"Groww requires either api key+secret in config or a direct access token on the data source")
}

func (p *Groww) buildURL(ds model.DataSource, segment, exchangeSymbol string) string {
	base := strings.TrimSpace(ds.APIEndpoint)
	if base == "" {
		base = growwBaseURL
	}
	return fmt.Sprintf("%s?segment=%s&exchange_symbols=%s", base, segment, exchangeSymbol)
}

// buildExchangeSymbol renders the composite key, e.g. NSE_RELIANCE.
func (p *Groww) buildExchangeSymbol(req FetchRequest) string {
	return strings.ToUpper(req.ExchangeCode) + "_" + strings.ToUpper(req.Symbol)
}

// classifySegment is a naming heuristic for requests that do not carry a
// segment: futures end in FUT, option symbols end in CE/PE after the strike
// digits. Plain equity names like RELIANCE also end in CE, so the option
// suffix only counts when the symbol carries digits.
func classifySegment(symbol string) string {
	upper := strings.ToUpper(symbol)
	if strings.HasSuffix(upper, "FUT") {
		return "FNO"
	}
	if (strings.HasSuffix(upper, "CE") || strings.HasSuffix(upper, "PE")) &&
		strings.ContainsAny(upper, "0123456789") {
		return "FNO"
	}
	return "CASH"
}

var _ Provider = (*Groww)(nil)
