package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	swarm "github.com/feiskyer/swarm-tools"
	"github.com/feiskyer/swarm-tools/openapi"
	"github.com/feiskyer/swarm-tools/tools"
)

var agentMessage string

var weatherCmd = &cobra.Command{
	Use:   "weather",
	Short: "Ask the weather/time agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.logger.Sync() //nolint:errcheck

		agent := swarm.NewAgent("azure_weather_time_agent").
			WithDescription("Agent to answer questions about the time and weather in a city, powered by Azure OpenAI.").
			WithInstructions("You are a helpful agent who can answer user questions about the time and weather in a city. " +
				"If asked about both weather and time for the same city, call both tools.").
			AddFunctions(tools.NewLookup(rt.logger).Functions()...)

		return rt.runAgent(cmd.Context(), agent)
	},
}

var petstoreCmd = &cobra.Command{
	Use:   "petstore",
	Short: "Ask an agent whose tools come from the configured OpenAPI document",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.logger.Sync() //nolint:errcheck

		toolset, err := rt.loadToolset(cmd.Context())
		if err != nil {
			return err
		}

		agent := swarm.NewAgent("openapi_agent").
			WithDescription("Agent that calls the operations of an HTTP API described by an OpenAPI document.").
			WithInstructions("You are a helpful agent that answers questions by calling the API tools you have. " +
				"Report API errors to the user as they are returned.").
			AddFunctions(toolset.Functions()...)

		return rt.runAgent(cmd.Context(), agent)
	},
}

func init() {
	for _, c := range []*cobra.Command{weatherCmd, petstoreCmd} {
		c.Flags().StringVarP(&agentMessage, "message", "m", "", "send one message and exit instead of starting a REPL")
		rootCmd.AddCommand(c)
	}
}

func (r *runtime) loadToolset(ctx context.Context) (*openapi.Toolset, error) {
	normalizer, err := r.cfg.OpenAPI.Normalizer()
	if err != nil {
		return nil, err
	}
	metrics, err := openapi.NewMetrics(r.registry)
	if err != nil {
		return nil, err
	}

	toolset, err := openapi.LoadToolset(ctx, openapi.LoadOptions{
		SpecURL:    r.cfg.OpenAPI.SpecURL,
		SpecFile:   r.cfg.OpenAPI.SpecFile,
		Normalizer: normalizer,
		Fetcher:    openapi.NewFetcher(r.cfg.OpenAPI.FetchTimeout),
		Credential: r.cfg.OpenAPI.Credential(),
		Logger:     r.logger,
		Metrics:    metrics,
		Limiter:    r.cfg.OpenAPI.Limiter(),
	})
	if err != nil {
		return nil, fmt.Errorf("loading OpenAPI toolset: %w", err)
	}
	return toolset, nil
}

func (r *runtime) runAgent(ctx context.Context, agent *swarm.Agent) error {
	if err := r.cfg.ValidateAzure(); err != nil {
		return err
	}
	agent.WithModel(r.cfg.Azure.Deployment)

	metrics, err := swarm.NewMetrics(r.registry)
	if err != nil {
		return err
	}
	client := swarm.NewAzureOpenAIClient(r.cfg.Azure.APIKey, r.cfg.Azure.APIBase, r.cfg.Azure.APIVersion)
	s := swarm.NewSwarm(client, swarm.WithLogger(r.logger), swarm.WithMetrics(metrics))

	r.logger.Info("agent initialized",
		zap.String("agent", agent.Name),
		zap.String("deployment", r.cfg.Azure.Deployment),
		zap.Int("tools", len(agent.Functions)),
	)

	stop := r.serveMetrics()
	defer stop()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := swarm.RunOptions{MaxTurns: r.cfg.Agent.MaxTurns, ExecuteTools: true}

	if agentMessage == "" {
		return swarm.RunDemoLoop(ctx, s, agent, os.Stdin, os.Stdout, opts)
	}

	runCtx, cancelRun := context.WithTimeout(ctx, r.cfg.Agent.Timeout)
	defer cancelRun()

	response, err := s.Run(runCtx, agent, []map[string]interface{}{
		{"role": "user", "content": agentMessage},
	}, opts)
	if err != nil {
		return err
	}
	fmt.Println(response.LastContent())
	return nil
}
