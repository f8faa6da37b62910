package cluster

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	resourceapi "k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/shipyard-neo/bay/internal/driver"
)

// A Cargo volume maps to a PersistentVolumeClaim, the closest cluster
// analogue of a Docker named volume.

func (d *Driver) CreateVolume(ctx context.Context, name string, labels map[string]string) error {
	l := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		l[k] = v
	}
	l[driver.LabelManaged] = "true"

	size := resourceapi.MustParse("10Gi")
	pvc := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: d.namespace, Labels: l},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{corev1.ResourceStorage: size},
			},
		},
	}
	if d.storageClass != "" {
		pvc.Spec.StorageClassName = &d.storageClass
	}

	_, err := d.clientset.CoreV1().PersistentVolumeClaims(d.namespace).Create(ctx, pvc, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	return err
}

func (d *Driver) RemoveVolume(ctx context.Context, name string) error {
	err := d.clientset.CoreV1().PersistentVolumeClaims(d.namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (d *Driver) ListVolumes(ctx context.Context, labelFilter map[string]string) ([]driver.VolumeInfo, error) {
	sel := fmt.Sprintf("%s=true", driver.LabelManaged)
	for k, v := range labelFilter {
		sel += fmt.Sprintf(",%s=%s", k, v)
	}
	pvcs, err := d.clientset.CoreV1().PersistentVolumeClaims(d.namespace).List(ctx, metav1.ListOptions{LabelSelector: sel})
	if err != nil {
		return nil, err
	}
	out := make([]driver.VolumeInfo, 0, len(pvcs.Items))
	for _, p := range pvcs.Items {
		out = append(out, driver.VolumeInfo{Name: p.Name, Labels: p.Labels, CreatedAt: p.CreationTimestamp.Time})
	}
	return out, nil
}
