// Package config loads the runboat controller configuration.
//
// Configuration is a single YAML file. Every field has a default, so a
// missing file yields a controller that watches no repositories and runs
// with the default budget.
//
// # Configuration Structure
//
//	controller:
//	  maxStarted: 10            # builds allowed to run at the same time
//	  idleTimeout: 2h           # stop started builds idle for this long (0 disables)
//	  interval: 5s              # period of the reconciliation pass
//	  workers: 4                # builds reconciled concurrently within a pass
//	  gatewayTimeout: 30s       # deadline of a single cluster call
//	  deployTimeout: 15m        # DEPLOYING longer than this fails the build (0 disables)
//	  retryFailedAfter: 1h      # automatically retry failed builds (0 disables)
//	  eventQueueSize: 1024      # buffered repository events
//	repos:
//	  - name: acme/shop
//	    refs: ["^main$", "^1[0-9]\\.0$"]
//	    pullRequests: true
//	api:
//	  listen: ":8080"
//	  webhookSecret: ""         # overridden by RUNBOAT_GITHUB_WEBHOOK_SECRET
//	kubernetes:
//	  namespace: runboat-builds
//	  kubeconfig: ""            # empty uses in-cluster or default discovery
//	  template: ""              # custom workload template, empty uses the built-in one
//	  imagePattern: ""
//	  values: {}
//	  qps: 20
//	  burst: 40
//	log:
//	  level: info
//	  format: text
//
// # Reloading
//
// Watcher re-reads the file when it changes on disk. Only the repository
// policy and the controller limits can change at runtime; the application
// applies those and ignores the rest until restart.
package config
