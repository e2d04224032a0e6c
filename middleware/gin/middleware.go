// Package gin implements the upto resource middleware: the sequencer
// that ties an HTTP request to verify -> handle -> meter -> settle.
package gin

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/upto-protocol/upto-go/facilitatorclient"
	"github.com/upto-protocol/upto-go/mechanisms/evm"
	"github.com/upto-protocol/upto-go/mechanisms/evm/facilitator"
)

// PaymentHeader is the canonical payment header name. PaymentSignatureHeader
// is accepted as an alias on input only.
const (
	PaymentHeader          = "X-Payment"
	PaymentSignatureHeader = "Payment-Signature"
)

// Meter is supplied by the route owner: given the request, the response
// body the handler produced, the amount the payer authorized, and the
// recovered payer address, it returns the metered consumption as a
// decimal string of smallest token units. It must read the response body
// non-destructively — the body passed in is a copy.
type Meter func(request *http.Request, responseBody []byte, authorizedAmount string, payer string) (string, error)

// RouteConfig configures one gated route.
type RouteConfig struct {
	Price             string
	Network           string
	Asset             string
	PayTo             string
	MaxTimeoutSeconds int
	Description       string
	MimeType          string
	Meter             Meter
}

// Option customizes a RouteConfig after construction.
type Option func(*RouteConfig)

func WithDescription(description string) Option {
	return func(c *RouteConfig) { c.Description = description }
}

func WithMimeType(mimeType string) Option {
	return func(c *RouteConfig) { c.MimeType = mimeType }
}

func WithMaxTimeoutSeconds(seconds int) Option {
	return func(c *RouteConfig) { c.MaxTimeoutSeconds = seconds }
}

// buildRequirements translates a route's price and target into
// PaymentRequirements, resolving the default asset for Network when Asset
// is unset. When Asset is unset it fails route setup (panics) on an unknown
// network, so that misconfiguration is caught at registration time, not
// request time; a route with an explicit Asset skips the network lookup.
func buildRequirements(cfg RouteConfig) evm.PaymentRequirements {
	maxAmount, err := evm.ParseUsdcAmount(cfg.Price, evm.DefaultDecimals)
	if err != nil {
		panic("upto: invalid price " + cfg.Price + ": " + err.Error())
	}

	asset := cfg.Asset
	if asset == "" {
		networkCfg, err := evm.GetNetworkConfig(cfg.Network)
		if err != nil {
			panic("upto: " + err.Error())
		}
		asset = networkCfg.DefaultAsset.Address
	}

	maxTimeout := cfg.MaxTimeoutSeconds
	if maxTimeout <= 0 {
		maxTimeout = evm.DefaultMaxTimeoutSeconds
	}

	return evm.PaymentRequirements{
		Scheme:            evm.SchemeUpto,
		Network:           cfg.Network,
		Asset:             asset,
		MaxAmount:         maxAmount,
		PayTo:             cfg.PayTo,
		MaxTimeoutSeconds: maxTimeout,
	}
}

// PaymentMiddleware gates a route on the upto scheme: it requires a valid
// payment authorization before invoking the handler, meters the handler's
// response, and settles the metered amount afterward.
func PaymentMiddleware(cfg RouteConfig, client *facilitatorclient.Client, logger *slog.Logger, opts ...Option) gin.HandlerFunc {
	for _, opt := range opts {
		opt(&cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}
	requirements := buildRequirements(cfg)

	return func(c *gin.Context) {
		ctx := c.Request.Context()

		// Step 3: look for the payment header (with alias).
		header := c.GetHeader(PaymentHeader)
		if header == "" {
			header = c.GetHeader(PaymentSignatureHeader)
		}
		if header == "" {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":       "Payment Required",
				"accepts":     []evm.PaymentRequirements{requirements},
				"description": cfg.Description,
				"mimeType":    cfg.MimeType,
			})
			return
		}

		// Step 4: decode the payload.
		payload, err := decodePayload(header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid payment payload"})
			return
		}

		// Step 5: verify with the facilitator.
		verifyResult, err := client.Verify(ctx, payload, requirements)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Facilitator unavailable"})
			return
		}
		if !verifyResult.IsValid {
			status := http.StatusPaymentRequired
			if verifyResult.InvalidReason == facilitator.ErrPermit2AllowanceRequired {
				status = http.StatusPreconditionFailed
			}
			c.AbortWithStatusJSON(status, gin.H{
				"error":   "Payment verification failed",
				"reason":  verifyResult.InvalidReason,
				"accepts": []evm.PaymentRequirements{requirements},
			})
			return
		}

		// Step 6: invoke the downstream handler, capturing its response so
		// meter can read it and so the middleware can attach settlement
		// headers before anything is actually sent to the client — once a
		// single response is committed it is never rolled back or rewritten.
		capture := &responseCapture{ResponseWriter: c.Writer, body: &bytes.Buffer{}, statusCode: http.StatusOK}
		c.Writer = capture
		c.Next()

		if c.IsAborted() {
			capture.flush()
			return
		}

		// Step 7: meter.
		authorizedAmount := payload.Permit2Authorization.Permitted.Amount
		meteredAmount, err := cfg.Meter(c.Request, bytes.Clone(capture.body.Bytes()), authorizedAmount, verifyResult.Payer)
		if err != nil {
			logger.Error("meter failed", "error", err, "nonce", payload.Permit2Authorization.Nonce)
			meteredAmount = authorizedAmount
		}

		// Step 8: set settlementAmount and settle.
		payload.SettlementAmount = &meteredAmount
		settleResult, err := client.Settle(ctx, payload, requirements)

		// Step 11: settlement failures never mutate the handler's status or
		// body; they are logged and, in production, would be enqueued for
		// retry. Only the success path adds payment headers, and it does so
		// before the response is committed, since by this point nothing has
		// been written to the real ResponseWriter yet.
		if err != nil {
			logger.Error("settle call failed", "error", err, "nonce", payload.Permit2Authorization.Nonce)
		} else if !settleResult.Success {
			logger.Error("settlement failed", "reason", settleResult.Error, "nonce", payload.Permit2Authorization.Nonce)
		} else {
			// Step 10: settlement succeeded, set response headers.
			paymentResponse := map[string]interface{}{
				"success":          settleResult.Success,
				"txHash":           settleResult.TxHash,
				"settledAmount":    settleResult.SettledAmount,
				"authorizedAmount": authorizedAmount,
			}
			encoded, _ := json.Marshal(paymentResponse)
			capture.Header().Set("X-Payment-Response", base64.StdEncoding.EncodeToString(encoded))
			capture.Header().Set("X-Payment-Settled", settleResult.SettledAmount)
			capture.Header().Set("X-Payment-TxHash", settleResult.TxHash)
		}

		capture.flush()
	}
}

func decodePayload(header string) (evm.UptoPayload, error) {
	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return evm.UptoPayload{}, err
	}
	return evm.PayloadFromJSON(decoded)
}

// responseCapture buffers the handler's entire response — status, headers,
// and body — instead of forwarding writes to the real ResponseWriter as
// they happen. Nothing reaches the client until flush is called, which lets
// the middleware attach settlement headers after metering and settling,
// something that is only possible if the status line hasn't already been
// sent.
type responseCapture struct {
	gin.ResponseWriter
	body       *bytes.Buffer
	statusCode int
	wroteHead  bool
}

func (w *responseCapture) WriteHeader(status int) {
	w.statusCode = status
	w.wroteHead = true
}

func (w *responseCapture) WriteHeaderNow() {}

func (w *responseCapture) Write(data []byte) (int, error) {
	return w.body.Write(data)
}

func (w *responseCapture) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

func (w *responseCapture) Written() bool {
	return w.wroteHead || w.body.Len() > 0
}

// flush writes the buffered status, headers, and body to the real
// ResponseWriter exactly once.
func (w *responseCapture) flush() {
	w.ResponseWriter.WriteHeader(w.statusCode)
	_, _ = w.ResponseWriter.Write(w.body.Bytes())
}
