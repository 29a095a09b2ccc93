package cluster

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoriumlabs/thorium/pkg/backend"
	"github.com/thoriumlabs/thorium/pkg/models"
)

func quantityNode(name string, cpuMillis, memBytes int64) *corev1.Node {
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Status: corev1.NodeStatus{
			Allocatable: corev1.ResourceList{
				corev1.ResourceCPU:    *resource.NewMilliQuantity(cpuMillis, resource.DecimalSI),
				corev1.ResourceMemory: *resource.NewQuantity(memBytes, resource.BinarySI),
			},
		},
	}
}

func TestResourcesAvailableSubtractsReservedHeadroom(t *testing.T) {
	clientset := fake.NewSimpleClientset(quantityNode("node-1", 4000, 8<<30))
	d := NewWithClientset(clientset, "thorium", nil)

	out, err := d.ResourcesAvailable(context.Background(), "c1", models.SystemSettings{
		ReservedCPUMillis:   500,
		ReservedMemoryBytes: 1 << 30,
	})
	require.NoError(t, err)
	require.Contains(t, out, "node-1")
	assert.Equal(t, int64(3500), out["node-1"].CPUMillis)
	assert.Equal(t, int64(7<<30), out["node-1"].MemoryBytes)
}

func TestResourcesAvailableFloorsAtZero(t *testing.T) {
	clientset := fake.NewSimpleClientset(quantityNode("node-1", 100, 1<<20))
	d := NewWithClientset(clientset, "thorium", nil)

	out, err := d.ResourcesAvailable(context.Background(), "c1", models.SystemSettings{
		ReservedCPUMillis:   1000,
		ReservedMemoryBytes: 1 << 30,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), out["node-1"].CPUMillis)
	assert.Equal(t, int64(0), out["node-1"].MemoryBytes)
}

func TestSpawnCreatesNamespaceAndPod(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	d := NewWithClientset(clientset, "", nil)
	ctx := context.Background()

	sp := backend.Spawn{
		Name: "thorium-job-1",
		Node: "node-1",
		Req:  models.Requisition{User: "alice", Group: "g1", Pipeline: "p1", Stage: 2},
		Resources: models.Resources{CPUMillis: 500, MemoryBytes: 256 << 20},
		Pool:      models.PoolDeadline,
		Image:     models.Image{Image: "scanner:latest"},
	}
	errs := d.Spawn(ctx, "c1", []backend.Spawn{sp})
	require.Empty(t, errs)

	_, err := clientset.CoreV1().Namespaces().Get(ctx, "g1", metav1.GetOptions{})
	require.NoError(t, err, "spawn should create the group's namespace")

	pod, err := clientset.CoreV1().Pods("g1").Get(ctx, "thorium-job-1", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "node-1", pod.Spec.NodeName)
	assert.Equal(t, "alice", pod.Labels["user"])
	assert.Equal(t, "true", pod.Labels[thoriumLabel])
}

func TestClearTerminalClassifiesOomKillAsErrorOut(t *testing.T) {
	succeeded := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "done", Namespace: "g1", Labels: map[string]string{thoriumLabel: "true"}},
		Status:     corev1.PodStatus{Phase: corev1.PodSucceeded},
	}
	oomed := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "oomed", Namespace: "g1", Labels: map[string]string{thoriumLabel: "true"}},
		Status: corev1.PodStatus{
			Phase: corev1.PodFailed,
			ContainerStatuses: []corev1.ContainerStatus{{
				State: corev1.ContainerState{Terminated: &corev1.ContainerStateTerminated{Reason: "OOMKilled"}},
			}},
		},
	}
	active := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "still-running", Namespace: "g1", Labels: map[string]string{thoriumLabel: "true"}},
		Status:     corev1.PodStatus{Phase: corev1.PodSucceeded},
	}

	clientset := fake.NewSimpleClientset(succeeded, oomed, active)
	d := NewWithClientset(clientset, "", nil)

	out, err := d.ClearTerminal(context.Background(), "c1", map[string]bool{"still-running": true})
	require.NoError(t, err)
	require.Len(t, out, 2)

	byName := map[string]backend.TerminalWorker{}
	for _, t := range out {
		byName[t.Name] = t
	}
	assert.Equal(t, backend.TerminalSucceeded, byName["done"].Outcome)
	assert.Equal(t, backend.TerminalErrorOut, byName["oomed"].Outcome)
	assert.Equal(t, "OOMKilled", byName["oomed"].Reason)
}
