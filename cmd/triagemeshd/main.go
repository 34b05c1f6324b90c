// Command triagemeshd runs the emergency-department triage service: it binds
// the workflow agents, optionally registers them with the external agent
// backend, and serves case intake over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"golang.org/x/sync/errgroup"

	"github.com/triagemesh/triagemesh/client"
	"github.com/triagemesh/triagemesh/config"
	"github.com/triagemesh/triagemesh/gateway"
	"github.com/triagemesh/triagemesh/history"
	"github.com/triagemesh/triagemesh/logging"
	"github.com/triagemesh/triagemesh/model"
	anthropicmodel "github.com/triagemesh/triagemesh/model/anthropic"
	openaimodel "github.com/triagemesh/triagemesh/model/openai"
	"github.com/triagemesh/triagemesh/registry"
	"github.com/triagemesh/triagemesh/resource"
	"github.com/triagemesh/triagemesh/server"
	"github.com/triagemesh/triagemesh/triage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "triagemeshd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LogLevelInfo,
		Format: "json",
		Output: os.Stdout,
	})

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedHistory(ctx, store); err != nil {
		return err
	}

	availability, err := resource.LoadFile(cfg.Data.AvailabilityPath)
	if err != nil {
		return err
	}
	hospitals, err := resource.LoadFile(cfg.Data.HospitalsPath)
	if err != nil {
		return err
	}

	triageModel, planModel, err := buildModels(cfg.Model)
	if err != nil {
		return err
	}

	dispatcher := registry.NewDispatcher(func(o *registry.Options) {
		o.Logger = logger.WithComponent("registry")
	})
	if _, err := triage.BindCaseHistoryAgent(dispatcher, store, cfg.History.TopK); err != nil {
		return err
	}
	if _, err := triage.BindEmergencyChecklistAgent(dispatcher, planModel); err != nil {
		return err
	}
	if _, err := triage.BindResourceAvailabilityAgent(dispatcher, planModel, availability, hospitals); err != nil {
		return err
	}

	var gw *gateway.Gateway
	var credentials client.CredentialSource
	if cfg.Gateway.Origin != "" {
		gw = gateway.New(cfg.Gateway.Origin, cfg.Gateway.Username, cfg.Gateway.Password,
			func(o *gateway.Options) { o.Logger = logger.WithComponent("gateway") })
		credentials = gw
	}

	sender := client.NewClient(dispatcher, func(o *client.Options) {
		o.Timeout = time.Duration(cfg.Client.TimeoutSeconds) * time.Second
		o.Credentials = credentials
		o.Logger = logger.WithComponent("client")
	})

	nodes := triage.NewNodes(triageModel, planModel, sender, availability,
		func(o *triage.NodesOptions) { o.Logger = logger.WithComponent("workflow") })
	orchestrator, err := triage.NewOrchestrator(nodes, func(o *triage.OrchestratorOptions) {
		o.MaxConcurrentCases = cfg.Server.MaxConcurrentCases
		o.Logger = logger.WithComponent("orchestrator")
	})
	if err != nil {
		return err
	}
	if _, err := triage.BindCaseAutomationAgent(dispatcher, orchestrator); err != nil {
		return err
	}

	if gw != nil {
		bctx, cancel := context.WithTimeout(ctx, 60*time.Second)
		results, err := gw.Bootstrap(bctx, dispatcher.Identities())
		cancel()
		if err != nil {
			return fmt.Errorf("agent backend bootstrap: %w", err)
		}
		for _, res := range results {
			logger.Info("agent %s registration: %s", res.AgentID, res.Status)
		}
	}

	srv := server.New(orchestrator, func(o *server.Options) {
		o.Logger = logger.WithComponent("server")
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Serve(gctx)
	})
	g.Go(func() error {
		logger.Info("case intake listening on %s", cfg.Server.Addr)
		return srv.Run(cfg.Server.Addr)
	})
	return g.Wait()
}

func buildModels(cfg config.ModelConfig) (model.Model, model.Model, error) {
	switch cfg.Provider {
	case "openai":
		triageModel := openaimodel.NewModel(func(o *openaimodel.Options) {
			if cfg.TriageModel != "" {
				o.Model = cfg.TriageModel
			}
		})
		planModel := openaimodel.NewModel(func(o *openaimodel.Options) {
			if cfg.PlanModel != "" {
				o.Model = cfg.PlanModel
			}
		})
		return triageModel, planModel, nil
	case "anthropic":
		triageModel := anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			if cfg.TriageModel != "" {
				o.Model = anthropicsdk.Model(cfg.TriageModel)
			}
		})
		planModel := anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			if cfg.PlanModel != "" {
				o.Model = anthropicsdk.Model(cfg.PlanModel)
			}
		})
		return triageModel, planModel, nil
	default:
		return nil, nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// seedHistory loads a starter case archive on first boot so similar-case
// retrieval has a corpus before any real cases are archived.
func seedHistory(ctx context.Context, store *history.Store) error {
	n, err := store.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, r := range starterCases {
		if err := store.Add(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

var starterCases = []history.Record{
	{
		Department:               "Emergency Medicine",
		PatientHistory:           "58-year-old male with hypertension presenting with crushing chest pain radiating to left arm, diaphoresis.",
		TreatmentGiven:           "Aspirin 325mg, sublingual nitroglycerin, oxygen, 12-lead ECG, cardiology consult.",
		CurrentMedications:       "Amlodipine 5mg daily",
		Allergies:                "None known",
		Vitals:                   "BP 88/58, HR 112, SpO2 93%, unstable",
		ConsultantRecommendation: "Immediate cath lab activation for suspected STEMI.",
		CaseSummary:              "Acute coronary syndrome with ST depression, admitted to CCU after stabilization.",
	},
	{
		Department:               "Emergency Medicine",
		PatientHistory:           "72-year-old female found confused and unresponsive at home, history of type 2 diabetes.",
		TreatmentGiven:           "Blood glucose check, IV dextrose, airway monitoring, head CT.",
		CurrentMedications:       "Metformin 500mg twice daily, insulin glargine",
		Allergies:                "Sulfa drugs",
		Vitals:                   "BP 102/64, HR 96, GCS 11, blood glucose 38 mg/dL",
		ConsultantRecommendation: "Admit for observation, endocrinology review of insulin regimen.",
		CaseSummary:              "Severe hypoglycemia with altered mental status, resolved after IV dextrose.",
	},
	{
		Department:               "Cardiology",
		PatientHistory:           "64-year-old male with palpitations, ECG showing ventricular fibrillation during transport.",
		TreatmentGiven:           "Defibrillation, amiodarone infusion, continuous cardiac monitoring.",
		CurrentMedications:       "Metoprolol 50mg daily",
		Allergies:                "Penicillin",
		Vitals:                   "Post-ROSC BP 96/60, HR 88, intubated",
		ConsultantRecommendation: "ICD evaluation after stabilization.",
		CaseSummary:              "Out-of-hospital cardiac arrest with successful resuscitation, admitted to ICU.",
	},
	{
		Department:               "Emergency Medicine",
		PatientHistory:           "35-year-old female with mild headache for two days, no neurological deficits, vitals stable.",
		TreatmentGiven:           "Oral analgesia, hydration advice, outpatient follow-up arranged.",
		CurrentMedications:       "None",
		Allergies:                "None known",
		Vitals:                   "BP 118/76, HR 72, afebrile, stable",
		ConsultantRecommendation: "Discharge with GP follow-up, return precautions given.",
		CaseSummary:              "Tension-type headache, discharged same day.",
	},
}
