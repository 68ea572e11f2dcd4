package domain

import (
	"strconv"
	"strings"
)

// AdmissionInstallmentNumber is the installment that holds the admission or
// registration fee.
const AdmissionInstallmentNumber = 1

type InstallmentKind string

const (
	KindAdmissionFee InstallmentKind = "admission_fee"
	KindInstallment  InstallmentKind = "installment"
)

var admissionMarkers = []string{"admission", "registration"}

// Classify decides whether a receipt pays the admission fee. An explicit
// installment number wins; remarks are only read for rows recorded without
// one.
func Classify(installmentNumber *int, remarks string) InstallmentKind {
	if installmentNumber != nil {
		if *installmentNumber == AdmissionInstallmentNumber {
			return KindAdmissionFee
		}
		return KindInstallment
	}
	if HasAdmissionMarker(remarks) {
		return KindAdmissionFee
	}
	return KindInstallment
}

func HasAdmissionMarker(remarks string) bool {
	lowered := strings.ToLower(remarks)
	for _, marker := range admissionMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

func normalizeToken(raw string) string {
	r := strings.NewReplacer("_", "", "-", "", " ", "")
	return strings.ToLower(r.Replace(strings.TrimSpace(raw)))
}

func itoa(v int) string { return strconv.Itoa(v) }
