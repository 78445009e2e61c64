package app

import (
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"runboat/internal/api"
	"runboat/internal/cluster"
	"runboat/internal/config"
	"runboat/internal/events"
	"runboat/internal/k8s"
	"runboat/internal/reconciler"
	"runboat/internal/registry"
	"runboat/internal/resolver"
	"runboat/internal/scheduler"
	"runboat/pkg/logging"
)

// Services holds every wired component of the controller.
type Services struct {
	Registry *registry.Registry
	Resolver *resolver.Resolver
	Events   *resolver.Queue
	Manager  *reconciler.Manager
	Gateway  cluster.Gateway
	API      *api.Server
	Metrics  *prometheus.Registry

	// EventGenerator publishes lifecycle transitions as Kubernetes Events,
	// or to the log in local mode.
	EventGenerator *events.EventGenerator

	// Watcher notices Deployment changes; nil in local mode.
	Watcher *k8s.Watcher

	// ConfigWatcher reloads the policy and limits; nil when no
	// configuration file path is known.
	ConfigWatcher *config.Watcher
}

// InitializeServices wires the registry, resolver, control loop, cluster
// gateway and HTTP API from cfg.
func InitializeServices(cfg *Config) (*Services, error) {
	rc := cfg.RunboatConfig

	policy, err := policyFromConfig(rc.Repos)
	if err != nil {
		return nil, err
	}

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reg := registry.New()
	queue := resolver.NewQueue(rc.Controller.EventQueueSize)
	res := resolver.New(reg, policy, nil)

	s := &Services{
		Registry: reg,
		Resolver: res,
		Events:   queue,
		Metrics:  metricsRegistry,
	}

	var sink events.Sink
	if cfg.Local {
		logging.Info("Bootstrap", "Running in local mode with an in-memory cluster")
		s.Gateway = cluster.NewMemoryGateway()
		sink = events.LogSink{}
	} else {
		gateway, watcher, eventSink, err := kubernetesGateway(rc.Kubernetes)
		if err != nil {
			return nil, err
		}
		s.Gateway = gateway
		s.Watcher = watcher
		sink = eventSink
	}
	s.EventGenerator = events.NewEventGenerator(sink, reg, rc.Kubernetes.Namespace)

	mc := managerConfig(rc.Controller, reconciler.NewMetrics(metricsRegistry))
	mc.OnTransition = s.EventGenerator.Observe
	s.Manager = reconciler.NewManager(mc, reg, res, queue, s.Gateway)

	s.API = api.NewServer(api.ServerOptions{
		Listen:        rc.API.Listen,
		WebhookSecret: rc.API.WebhookSecret,
		Controller:    s.Manager,
		Gatherer:      metricsRegistry,
	})

	if cfg.ConfigPath != "" {
		path, err := filepath.Abs(cfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve configuration path: %w", err)
		}
		s.ConfigWatcher = config.NewWatcher(path, 0, s.ApplyConfig)
	}

	logging.Info("Bootstrap", "Initialized controller: %d repositories, budget %d",
		len(rc.Repos), rc.Controller.MaxStarted)
	return s, nil
}

func kubernetesGateway(kc config.KubernetesConfig) (*k8s.Gateway, *k8s.Watcher, events.Sink, error) {
	restConfig, err := k8s.RESTConfig(kc.Kubeconfig, float32(kc.QPS), kc.Burst)
	if err != nil {
		return nil, nil, nil, err
	}

	scheme := k8s.NewScheme()
	c, err := k8s.NewClient(restConfig, scheme)
	if err != nil {
		return nil, nil, nil, err
	}

	renderer, err := k8s.NewRenderer(k8s.RendererOptions{
		Namespace:    kc.Namespace,
		TemplatePath: kc.Template,
		ImagePattern: kc.ImagePattern,
		Values:       kc.Values,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load workload template: %w", err)
	}

	gateway := k8s.NewGateway(c, renderer, k8s.GatewayOptions{
		Namespace: kc.Namespace,
		QPS:       kc.QPS,
		Burst:     kc.Burst,
	})
	return gateway, k8s.NewWatcher(restConfig, kc.Namespace, scheme), events.NewKubernetesSink(c), nil
}

// ApplyConfig applies the parts of a reloaded configuration that can change
// at runtime: the repository policy and the controller limits.
func (s *Services) ApplyConfig(rc config.RunboatConfig) {
	policy, err := policyFromConfig(rc.Repos)
	if err != nil {
		logging.Error("Bootstrap", err, "Ignoring reloaded repository policy")
	} else {
		s.Resolver.SetPolicy(policy)
		logging.Info("Bootstrap", "Repository policy reloaded: %d repositories", len(rc.Repos))
	}
	s.Manager.SetLimits(limitsFromConfig(rc.Controller))
}

func policyFromConfig(repos []config.RepoConfig) (*resolver.Policy, error) {
	rules := make([]resolver.RepoRule, 0, len(repos))
	for _, repo := range repos {
		rules = append(rules, resolver.RepoRule{
			Repo:         repo.Name,
			Refs:         repo.Refs,
			PullRequests: repo.PullRequests,
		})
	}
	policy, err := resolver.NewPolicy(rules)
	if err != nil {
		return nil, fmt.Errorf("invalid repository policy: %w", err)
	}
	return policy, nil
}

func limitsFromConfig(ctl config.ControllerConfig) scheduler.Limits {
	return scheduler.Limits{
		MaxStarted:       ctl.MaxStarted,
		IdleTimeout:      ctl.IdleTimeout,
		RetryFailedAfter: ctl.RetryFailedAfter,
	}
}

func managerConfig(ctl config.ControllerConfig, metrics *reconciler.Metrics) reconciler.ManagerConfig {
	return reconciler.ManagerConfig{
		Interval:       ctl.Interval,
		WorkerCount:    ctl.Workers,
		GatewayTimeout: ctl.GatewayTimeout,
		DeployTimeout:  ctl.DeployTimeout,
		Limits:         limitsFromConfig(ctl),
		Metrics:        metrics,
	}
}
