// Package k8s implements the cluster gateway on top of a Kubernetes API
// server.
//
// Every build is rendered from a text/template (with the sprig function
// library) into a set of namespaced objects that carry the
// runboat/build=<id> label. The label is the only link between a build and
// its objects: deletion and status observation both select by it, so the
// gateway keeps no state of its own and every operation can be repeated.
//
// The Watcher watches the Deployments created by the gateway and nudges the
// control loop whenever one of them changes, so readiness is noticed without
// waiting for the next periodic pass.
package k8s
