package main

import (
	"testing"

	"warungpos/terminal/internal/config"
)

func TestValidateConfigRequiresRemoteBaseURL(t *testing.T) {
	err := validateConfig(config.Config{TenantID: "t", BranchID: "b", MaxAttempts: 5})
	if err == nil {
		t.Fatalf("expected missing remote base url to be rejected")
	}
}

func TestValidateConfigAcceptsCompleteConfig(t *testing.T) {
	err := validateConfig(config.Config{
		RemoteBaseURL: "https://pos.example.com",
		TenantID:      "warung-7",
		BranchID:      "pusat",
		MaxAttempts:   5,
	})
	if err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}
}
