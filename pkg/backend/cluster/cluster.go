// Package cluster implements the container-cluster backend driver (spec
// §4.9 C9) over k8s.io/client-go: one namespace per group, pods labeled by
// {user, group, pipeline, stage, pool, thorium}, security context derived
// from the job's image spec, host aliases from config. Grounded on
// original_source/operator/src/k8s/namespaces.rs (namespace-per-group
// create-if-absent) and original_source/scaler/src/libs/schedulers/k8s/
// pods.rs (pod labeling, terminal-phase classification, 5-at-a-time
// delete/spawn fan-out).
package cluster

import (
	"context"
	"fmt"
	"log/slog"

	corev1 "k8s.io/api/core/v1"
	apierrs "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/backend"
	"github.com/thoriumlabs/thorium/pkg/models"
)

const thoriumLabel = "thorium"

// Driver schedules Thorium workers as pods in a Kubernetes cluster.
type Driver struct {
	clientset       kubernetes.Interface
	namespacePrefix string
	hostAliases     []corev1.HostAlias
}

// New builds a Driver from a kubeconfig path (empty uses in-cluster config).
func New(kubeconfig, namespacePrefix string, hostAliasIPs []string) (*Driver, error) {
	cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "load kubeconfig")
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "build k8s clientset")
	}
	return NewWithClientset(clientset, namespacePrefix, hostAliasIPs), nil
}

// NewWithClientset builds a Driver over an already-constructed clientset,
// used in tests with k8s.io/client-go/kubernetes/fake.
func NewWithClientset(clientset kubernetes.Interface, namespacePrefix string, hostAliasIPs []string) *Driver {
	aliases := make([]corev1.HostAlias, 0, len(hostAliasIPs))
	for _, ip := range hostAliasIPs {
		aliases = append(aliases, corev1.HostAlias{IP: ip})
	}
	return &Driver{clientset: clientset, namespacePrefix: namespacePrefix, hostAliases: aliases}
}

func (d *Driver) namespace(group string) string {
	if d.namespacePrefix == "" {
		return group
	}
	return d.namespacePrefix + "-" + group
}

// Setup confirms API connectivity for the logical cluster by listing
// namespaces; it creates no namespaces itself. Groups are discovered lazily
// as spawns arrive, and Spawn creates each group's namespace through
// ensureNamespace.
func (d *Driver) Setup(ctx context.Context, cluster string) error {
	_, err := d.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{Limit: 1})
	if err != nil {
		return apierrors.Wrap(apierrors.KindUnavailable, err, "connect to cluster %s", cluster)
	}
	return nil
}

// ensureNamespace creates a group's namespace if it doesn't already exist,
// tolerating a concurrent creator (AlreadyExists is not an error).
func (d *Driver) ensureNamespace(ctx context.Context, group string) error {
	ns := d.namespace(group)
	_, err := d.clientset.CoreV1().Namespaces().Create(ctx, &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: ns},
	}, metav1.CreateOptions{})
	if err != nil && !apierrs.IsAlreadyExists(err) {
		return apierrors.Wrap(apierrors.KindInternal, err, "create namespace %s", ns)
	}
	return nil
}

// ResourcesAvailable sums each node's allocatable capacity minus the
// system's reserved headroom (spec §4.8 step 2).
func (d *Driver) ResourcesAvailable(ctx context.Context, cluster string, settings models.SystemSettings) (map[string]models.Resources, error) {
	nodes, err := d.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindUnavailable, err, "list nodes in cluster %s", cluster)
	}
	out := make(map[string]models.Resources, len(nodes.Items))
	for _, n := range nodes.Items {
		cpu := n.Status.Allocatable.Cpu().MilliValue() - settings.ReservedCPUMillis
		mem := n.Status.Allocatable.Memory().Value() - settings.ReservedMemoryBytes
		eph := n.Status.Allocatable.StorageEphemeral().Value() - settings.ReservedStorageBytes
		if cpu < 0 {
			cpu = 0
		}
		if mem < 0 {
			mem = 0
		}
		if eph < 0 {
			eph = 0
		}
		out[n.Name] = models.Resources{CPUMillis: cpu, MemoryBytes: mem, EphemeralBytes: eph}
	}
	return out, nil
}

// Spawn creates one pod per requested spawn, ensuring the group's namespace
// exists first. Failures are reported per-name; successes are omitted.
func (d *Driver) Spawn(ctx context.Context, cluster string, spawns []backend.Spawn) map[string]error {
	errs := make(map[string]error)
	ensured := make(map[string]bool)
	for _, sp := range spawns {
		ns := d.namespace(sp.Req.Group)
		if !ensured[ns] {
			if err := d.ensureNamespace(ctx, sp.Req.Group); err != nil {
				errs[sp.Name] = err
				continue
			}
			ensured[ns] = true
		}
		pod := d.buildPod(sp)
		if _, err := d.clientset.CoreV1().Pods(ns).Create(ctx, pod, metav1.CreateOptions{}); err != nil {
			slog.Error("failed to spawn pod", "cluster", cluster, "pod", sp.Name, "error", err)
			errs[sp.Name] = apierrors.Wrap(apierrors.KindInternal, err, "spawn pod %s", sp.Name)
		}
	}
	return errs
}

// buildPod assembles a pod spec from an image and requisition: resource
// requests, security context, volumes/host-path mounts, and the Thorium
// ownership labels pods.rs's thorium_owned check requires.
func (d *Driver) buildPod(sp backend.Spawn) *corev1.Pod {
	img := sp.Image
	resources := corev1.ResourceRequirements{
		Requests: corev1.ResourceList{
			corev1.ResourceCPU:              *resource.NewMilliQuantity(sp.Resources.CPUMillis, resource.DecimalSI),
			corev1.ResourceMemory:           *resource.NewQuantity(sp.Resources.MemoryBytes, resource.BinarySI),
			corev1.ResourceEphemeralStorage: *resource.NewQuantity(sp.Resources.EphemeralBytes, resource.BinarySI),
		},
	}

	var volumes []corev1.Volume
	var mounts []corev1.VolumeMount
	for _, v := range append(append([]models.Volume{}, img.Volumes...), img.HostPathMounts...) {
		volumes = append(volumes, corev1.Volume{
			Name: v.Name,
			VolumeSource: corev1.VolumeSource{
				HostPath: hostPathSource(v.HostPath),
			},
		})
		mounts = append(mounts, corev1.VolumeMount{Name: v.Name, MountPath: v.MountPath})
	}

	var secCtx *corev1.SecurityContext
	if img.SecurityContext.RunAsUser != nil || img.SecurityContext.Privileged {
		secCtx = &corev1.SecurityContext{
			RunAsUser:  img.SecurityContext.RunAsUser,
			RunAsGroup: img.SecurityContext.RunAsGroup,
			Privileged: &img.SecurityContext.Privileged,
		}
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name: sp.Name,
			Labels: map[string]string{
				"user":     sp.Req.User,
				"group":    sp.Req.Group,
				"pipeline": sp.Req.Pipeline,
				"stage":    fmt.Sprintf("%d", sp.Req.Stage),
				"pool":     string(sp.Pool),
				thoriumLabel: "true",
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			NodeName:      sp.Node,
			HostAliases:   d.hostAliases,
			Volumes:       volumes,
			Containers: []corev1.Container{{
				Name:            "tool",
				Image:           img.Image,
				Resources:       resources,
				VolumeMounts:    mounts,
				SecurityContext: secCtx,
			}},
		},
	}
}

// Delete removes pods one at a time with a zero grace period, tolerating
// already-gone pods.
func (d *Driver) Delete(ctx context.Context, cluster string, deletes []backend.Delete) []backend.DeleteResult {
	results := make([]backend.DeleteResult, len(deletes))
	grace := int64(0)
	for i, del := range deletes {
		ns := d.namespace(del.Req.Group)
		err := d.clientset.CoreV1().Pods(ns).Delete(ctx, del.Name, metav1.DeleteOptions{GracePeriodSeconds: &grace})
		if err != nil && !apierrs.IsNotFound(err) {
			results[i] = backend.DeleteResult{Name: del.Name, Err: apierrors.Wrap(apierrors.KindInternal, err, "delete pod %s", del.Name)}
			continue
		}
		results[i] = backend.DeleteResult{Name: del.Name, Deleted: true}
	}
	return results
}

// ClearTerminal lists every Thorium-owned pod across the cluster's
// namespaces and classifies the ones not in active, mirroring pods.rs's
// filter_terminal (Succeeded/Failed/OOMKilled error-out).
func (d *Driver) ClearTerminal(ctx context.Context, cluster string, active map[string]bool) ([]backend.TerminalWorker, error) {
	pods, err := d.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
		LabelSelector: thoriumLabel + "=true",
	})
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindUnavailable, err, "list pods in cluster %s", cluster)
	}

	var out []backend.TerminalWorker
	for _, pod := range pods.Items {
		if active[pod.Name] {
			continue
		}
		switch pod.Status.Phase {
		case corev1.PodSucceeded:
			out = append(out, backend.TerminalWorker{Name: pod.Name, Outcome: backend.TerminalSucceeded})
		case corev1.PodFailed:
			if reason := oomReason(pod.Status.ContainerStatuses); reason != "" {
				out = append(out, backend.TerminalWorker{Name: pod.Name, Outcome: backend.TerminalErrorOut, Reason: reason})
			} else {
				out = append(out, backend.TerminalWorker{Name: pod.Name, Outcome: backend.TerminalFailed})
			}
		}
	}
	return out, nil
}

func oomReason(statuses []corev1.ContainerStatus) string {
	for _, cs := range statuses {
		if cs.State.Terminated != nil && cs.State.Terminated.Reason == "OOMKilled" {
			return "OOMKilled"
		}
	}
	return ""
}

func hostPathSource(path string) *corev1.HostPathVolumeSource {
	if path == "" {
		return nil
	}
	return &corev1.HostPathVolumeSource{Path: path}
}
