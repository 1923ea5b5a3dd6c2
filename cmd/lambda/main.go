package main

import (
	"context"

	"github.com/sfkse/rewriteit/app"
	"github.com/sfkse/rewriteit/app/config"
	"github.com/sfkse/rewriteit/app/logging"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/rs/zerolog/log"
)

var (
	ginLambda *ginadapter.GinLambda
	logSink   logging.Sink
	cleanup   func()
)

// init runs once per Lambda container (cold start). Tasks must go to SQS:
// the container may freeze as soon as the response is written.
func init() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logSink = logging.Setup(cfg.Logs)

	if cfg.Queue.URL == "" {
		log.Fatal().Msg("QUEUE_URL environment variable is required")
	}

	srv, done, err := app.Bootstrap(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap server")
	}
	cleanup = done

	ginLambda = ginadapter.New(app.NewRouter(srv))
}

// Handler is the Lambda entrypoint for API Gateway REST/HTTP API (proxy integration).
// Buffered log lines are shipped before returning; the container may be
// frozen right after.
func Handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	defer logSink.Flush()
	return ginLambda.ProxyWithContext(ctx, req)
}

func shutdown() {
	log.Info().Msg("lambda container shutting down")
	cleanup()
	logSink.Close()
}

func main() {
	lambda.StartWithOptions(Handler, lambda.WithEnableSIGTERM(shutdown))
}
