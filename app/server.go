package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sfkse/rewriteit/app/chat"
	"github.com/sfkse/rewriteit/app/completion"
	"github.com/sfkse/rewriteit/app/config"
	"github.com/sfkse/rewriteit/app/store"
	"github.com/sfkse/rewriteit/auth"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v79"
)

// SlackAuth covers the OAuth sign-in calls.
type SlackAuth interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*chat.Identity, error)
	UserInfo(ctx context.Context, token, userID string) (*chat.Profile, error)
}

// Server holds what the HTTP handlers need.
type Server struct {
	cfg        *config.Config
	store      *store.Store
	dispatcher Dispatcher
	slack      SlackAuth
	verifier   *auth.Verifier
	sessions   *auth.SessionIssuer
}

type Deps struct {
	Config     *config.Config
	Store      *store.Store
	Dispatcher Dispatcher
	Slack      SlackAuth
	Verifier   *auth.Verifier
	// Sessions is optional; without it sign-in still works but no token is issued.
	Sessions *auth.SessionIssuer
}

func NewServer(d Deps) *Server {
	return &Server{
		cfg:        d.Config,
		store:      d.Store,
		dispatcher: d.Dispatcher,
		slack:      d.Slack,
		verifier:   d.Verifier,
		sessions:   d.Sessions,
	}
}

// OpenStore connects and migrates the database named in cfg.
func OpenStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(ctx, cfg.DB.URL, store.WithFreeCredits(cfg.Credits.Free))
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// NewChatClient builds the Slack client from cfg.
func NewChatClient(cfg *config.Config) *chat.Client {
	return chat.NewClient(cfg.Slack.ClientID, cfg.Slack.ClientSecret, chat.WithAPIURL(cfg.Slack.APIBaseURL))
}

// BuildProcessor wires the completion provider and Slack client around st.
func BuildProcessor(ctx context.Context, cfg *config.Config, st *store.Store) (*Processor, error) {
	completer, err := completion.New(ctx, cfg.Completion)
	if err != nil {
		return nil, err
	}
	return NewProcessor(st, completer, NewChatClient(cfg)), nil
}

// NewSQSClient loads the default AWS credential chain.
func NewSQSClient(ctx context.Context) (*sqs.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg), nil
}

// Bootstrap builds a ready Server from configuration. The returned cleanup
// drains the dispatcher and closes the database, in that order.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Server, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	stripe.Key = cfg.Stripe.SecretKey

	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var dispatcher Dispatcher
	if cfg.Queue.URL != "" {
		client, err := NewSQSClient(ctx)
		if err != nil {
			st.Close()
			return nil, nil, err
		}
		dispatcher = NewSQSDispatcher(client, cfg.Queue.URL)
		log.Info().Str("queue_url", cfg.Queue.URL).Msg("dispatching tasks to SQS")
	} else {
		processor, err := BuildProcessor(ctx, cfg, st)
		if err != nil {
			st.Close()
			return nil, nil, err
		}
		dispatcher = NewLocalDispatcher(processor, cfg.Queue.Workers, cfg.Queue.Buffer, cfg.Queue.TaskTimeout)
		log.Info().Int("workers", cfg.Queue.Workers).Msg("dispatching tasks in process")
	}

	var sessions *auth.SessionIssuer
	if cfg.Session.Secret != "" {
		sessions, err = auth.NewSessionIssuer(cfg.Session.Secret, cfg.Session.TTL)
		if err != nil {
			dispatcher.Close()
			st.Close()
			return nil, nil, err
		}
	} else {
		log.Warn().Msg("SESSION_SECRET not set; sign-in will not issue session tokens")
	}

	srv := NewServer(Deps{
		Config:     cfg,
		Store:      st,
		Dispatcher: dispatcher,
		Slack:      NewChatClient(cfg),
		Verifier:   auth.NewVerifier(cfg.Slack.SigningSecret),
		Sessions:   sessions,
	})

	cleanup := func() {
		start := time.Now()
		if err := dispatcher.Close(); err != nil {
			log.Error().Err(err).Msg("dispatcher close failed")
		}
		log.Info().Dur("took", time.Since(start)).Msg("dispatcher drained")
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("store close failed")
		}
	}
	return srv, cleanup, nil
}
