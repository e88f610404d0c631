package service

import (
	"fmt"

	"github.com/emrgen/docview/internal/metrics"
	"github.com/sirupsen/logrus"
)

type AnomalyKind string

const (
	AnomalyPageOutOfRange   AnomalyKind = "page_out_of_range"
	AnomalyNegativeValue    AnomalyKind = "negative_value"
	AnomalyNonFiniteValue   AnomalyKind = "non_finite_value"
	AnomalyLateUpdate       AnomalyKind = "late_update"
	AnomalyDocumentMismatch AnomalyKind = "document_mismatch"
)

// Anomaly is malformed telemetry that was tolerated and folded anyway.
type Anomaly struct {
	Kind   AnomalyKind `json:"kind"`
	Detail string      `json:"detail"`
}

func (a Anomaly) Error() string {
	return fmt.Sprintf("%s: %s", a.Kind, a.Detail)
}

func (a Anomaly) Unwrap() error {
	return ErrAnomaly
}

func reportAnomalies(session string, page int, anomalies []Anomaly) {
	for _, a := range anomalies {
		metrics.AnomaliesTotal.WithLabelValues(string(a.Kind)).Inc()
		logrus.WithFields(logrus.Fields{
			"session": session,
			"page":    page,
			"kind":    a.Kind,
		}).Warn(a.Detail)
	}
}
