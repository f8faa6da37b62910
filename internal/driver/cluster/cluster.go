// Package cluster implements internal/driver.Driver against a Kubernetes
// cluster, for the orchestrator's "driver.type: cluster" mode: sessions
// become Pods, cargos become PersistentVolumeClaims.
package cluster

import (
	"context"
	"fmt"
	"io"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	resourceapi "k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/remotecommand"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/rs/zerolog"

	"github.com/shipyard-neo/bay/internal/config"
	"github.com/shipyard-neo/bay/internal/driver"
)

const Name = "cluster"

// Driver implements driver.Driver by managing Pods and
// PersistentVolumeClaims in a single namespace.
type Driver struct {
	clientset *kubernetes.Clientset
	restCfg   *rest.Config
	namespace string
	storageClass string
	startupTimeout time.Duration
	log       zerolog.Logger
}

// New builds a cluster driver from the given config. If cfg.Kubeconfig is
// empty, in-cluster config is attempted first.
func New(cfg config.K8sConfig, log zerolog.Logger) (*Driver, error) {
	restCfg, err := loadRestConfig(cfg.Kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("loading kube config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("building clientset: %w", err)
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = "bay"
	}
	timeout := cfg.PodStartupTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Driver{
		clientset:      clientset,
		restCfg:        restCfg,
		namespace:      ns,
		storageClass:   cfg.StorageClass,
		startupTimeout: timeout,
		log:            log.With().Str("component", "driver.cluster").Logger(),
	}, nil
}

func loadRestConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}
	return clientcmd.BuildConfigFromFlags("", clientcmd.RecommendedHomeFile)
}

func init() {
	driver.Register(Name, func(cfg any) (driver.Driver, error) {
		kc, ok := cfg.(config.K8sConfig)
		if !ok {
			return nil, fmt.Errorf("cluster driver: unexpected config type %T", cfg)
		}
		return New(kc, zerolog.Nop())
	})
}

func (d *Driver) DriverName() string { return Name }

func (d *Driver) Healthy(ctx context.Context) error {
	_, err := d.clientset.Discovery().ServerVersion()
	return err
}

func (d *Driver) Close() error { return nil }

func (d *Driver) CreateContainer(ctx context.Context, name string, spec driver.ContainerSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	labels := make(map[string]string, len(spec.Labels)+1)
	for k, v := range spec.Labels {
		labels[k] = v
	}
	labels[driver.LabelManaged] = "true"

	var envVars []corev1.EnvVar
	for k, v := range spec.Env {
		envVars = append(envVars, corev1.EnvVar{Name: k, Value: v})
	}

	var volumes []corev1.Volume
	var volumeMounts []corev1.VolumeMount
	for i, m := range spec.Mounts {
		volName := fmt.Sprintf("vol-%d", i)
		volumes = append(volumes, corev1.Volume{
			Name: volName,
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
					ClaimName: m.VolumeName,
					ReadOnly:  m.ReadOnly,
				},
			},
		})
		volumeMounts = append(volumeMounts, corev1.VolumeMount{Name: volName, MountPath: m.Target, ReadOnly: m.ReadOnly})
	}

	cpuQty := resourceapi.NewMilliQuantity(int64(spec.Resources.CPUCores*1000), resourceapi.DecimalSI)
	memQty := resourceapi.NewQuantity(spec.Resources.MemoryMB*1024*1024, resourceapi.BinarySI)

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: d.namespace,
			Labels:    labels,
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{{
				Name:         "main",
				Image:        spec.Image,
				Command:      []string{"tail", "-f", "/dev/null"},
				Env:          envVars,
				WorkingDir:   spec.WorkDir,
				VolumeMounts: volumeMounts,
				Resources: corev1.ResourceRequirements{
					Limits: corev1.ResourceList{
						corev1.ResourceCPU:    *cpuQty,
						corev1.ResourceMemory: *memQty,
					},
				},
			}},
			Volumes: volumes,
		},
	}

	created, err := d.clientset.CoreV1().Pods(d.namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return "", fmt.Errorf("creating pod: %w", err)
	}
	return created.Name, nil
}

func (d *Driver) StartContainer(ctx context.Context, id string) error {
	deadline := time.Now().Add(d.startupTimeout)
	for time.Now().Before(deadline) {
		pod, err := d.clientset.CoreV1().Pods(d.namespace).Get(ctx, id, metav1.GetOptions{})
		if err != nil {
			if apierrors.IsNotFound(err) {
				return driver.ErrContainerNotFound
			}
			return err
		}
		if pod.Status.Phase == corev1.PodRunning {
			return nil
		}
		if pod.Status.Phase == corev1.PodFailed {
			return fmt.Errorf("%w: pod failed: %s", driver.ErrConnectionFailed, pod.Status.Reason)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("pod %s did not become ready within %s", id, d.startupTimeout)
}

func (d *Driver) StopContainer(ctx context.Context, id string) error {
	grace := int64(0)
	err := d.clientset.CoreV1().Pods(d.namespace).Delete(ctx, id, metav1.DeleteOptions{GracePeriodSeconds: &grace})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (d *Driver) InspectContainer(ctx context.Context, id string) (*driver.InspectResult, error) {
	pod, err := d.clientset.CoreV1().Pods(d.namespace).Get(ctx, id, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, driver.ErrContainerNotFound
		}
		return nil, err
	}
	return podToResult(pod), nil
}

func podToResult(pod *corev1.Pod) *driver.InspectResult {
	state := driver.ContainerStopped
	errMsg := ""
	switch pod.Status.Phase {
	case corev1.PodRunning:
		state = driver.ContainerRunning
	case corev1.PodPending:
		state = driver.ContainerCreating
	case corev1.PodFailed:
		state = driver.ContainerError
		errMsg = pod.Status.Reason
	}
	return &driver.InspectResult{
		ID:            pod.Name,
		Name:          pod.Name,
		State:         state,
		ContainerIP:   pod.Status.PodIP,
		ContainerPort: 8080,
		Labels:        pod.Labels,
		CreatedAt:     pod.CreationTimestamp.Time,
		Error:         errMsg,
	}
}

func (d *Driver) ListContainers(ctx context.Context, labelFilter map[string]string) ([]*driver.InspectResult, error) {
	sel := fmt.Sprintf("%s=true", driver.LabelManaged)
	for k, v := range labelFilter {
		sel += fmt.Sprintf(",%s=%s", k, v)
	}
	pods, err := d.clientset.CoreV1().Pods(d.namespace).List(ctx, metav1.ListOptions{LabelSelector: sel})
	if err != nil {
		return nil, err
	}
	out := make([]*driver.InspectResult, 0, len(pods.Items))
	for i := range pods.Items {
		out = append(out, podToResult(&pods.Items[i]))
	}
	return out, nil
}

func (d *Driver) Exec(ctx context.Context, id string, cmd []string) (io.ReadWriteCloser, error) {
	req := d.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(id).
		Namespace(d.namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: "main",
			Command:   cmd,
			Stdin:     true,
			Stdout:    true,
			Stderr:    true,
			TTY:       false,
		}, scheme_ParameterCodec())

	executor, err := remotecommand.NewSPDYExecutor(d.restCfg, "POST", req.URL())
	if err != nil {
		return nil, fmt.Errorf("building executor: %w", err)
	}
	return newExecStream(ctx, executor), nil
}
