// Command resourceserver is a demo resource server that gates a single
// route behind the upto scheme, metering consumption by word count at a
// fixed per-token price.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/upto-protocol/upto-go/config"
	"github.com/upto-protocol/upto-go/facilitatorclient"
	uptogin "github.com/upto-protocol/upto-go/middleware/gin"
)

// pricePerToken is the per-token price used by the demo meter, matching
// the $0.0001/token figure from the worked scenario.
const pricePerToken = "0.0001"

func main() {
	cfg, err := config.LoadResourceServerConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "upto resource server: "+err.Error())
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	facilitator := facilitatorclient.New(cfg.FacilitatorURL)

	router := gin.Default()

	meter := func(request *http.Request, responseBody []byte, authorizedAmount string, payer string) (string, error) {
		tokenCount := len(strings.Fields(string(responseBody)))
		perToken, err := strconv.ParseFloat(pricePerToken, 64)
		if err != nil {
			return "0", err
		}
		smallest := int64(float64(tokenCount) * perToken * 1_000_000)
		return strconv.FormatInt(smallest, 10), nil
	}

	router.GET("/generate", uptogin.PaymentMiddleware(uptogin.RouteConfig{
		Price:       "1.00",
		Network:     cfg.Network,
		PayTo:       cfg.PayTo,
		Description: "Generate a short block of text, billed per token consumed.",
		MimeType:    "text/plain",
		Meter:       meter,
	}, facilitator, logger), func(c *gin.Context) {
		c.String(http.StatusOK, strings.Repeat("token ", 437))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("resource server listening", "addr", addr, "facilitator", cfg.FacilitatorURL)
	if err := router.Run(addr); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
