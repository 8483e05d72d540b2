package handler

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
	"github.com/savaki/sentiment-bot/pkg/apperr"
	"github.com/savaki/sentiment-bot/pkg/logger"
	"github.com/savaki/sentiment-bot/pkg/models"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// HandleAPIGateway is the Lambda entry point for API Gateway proxy requests
func (g *Gateway) HandleAPIGateway(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	body := request.Body
	if request.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			resp := g.fail(logger.FromContext(ctx), apperr.Malformed("gateway.Decode", err))
			return toProxyResponse(resp), nil
		}
		body = string(decoded)
	}

	headers := make(map[string]string, len(request.Headers)+len(request.MultiValueHeaders))
	for k, v := range request.MultiValueHeaders {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	for k, v := range request.Headers {
		headers[k] = v
	}

	resp := g.Handle(ctx, models.InboundRequest{
		Body:       body,
		Headers:    headers,
		ReceivedAt: time.Now(),
	})
	return toProxyResponse(resp), nil
}

func toProxyResponse(resp models.HTTPResponse) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       resp.Body,
	}
}

// GinHandler serves the gateway over plain HTTP for local runs
func (g *Gateway) GinHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
		if err != nil {
			logger.GetLogger().Warn("Failed to read request body", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": apperr.KindMalformedPayload.String()})
			return
		}

		headers := make(map[string]string, len(c.Request.Header))
		for k := range c.Request.Header {
			headers[k] = c.Request.Header.Get(k)
		}

		resp := g.Handle(c.Request.Context(), models.InboundRequest{
			Body:       string(body),
			Headers:    headers,
			ReceivedAt: time.Now(),
		})
		for k, v := range resp.Headers {
			c.Header(k, v)
		}
		c.Data(resp.StatusCode, resp.Headers["Content-Type"], []byte(resp.Body))
	}
}
