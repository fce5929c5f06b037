package array

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	mock := NewMockMediator()

	if err := r.Register("svc", mock.Factory()); err != nil {
		t.Fatalf("Register svc: %v", err)
	}
	if err := r.Register("a9k", mock.Factory()); err != nil {
		t.Fatalf("Register a9k: %v", err)
	}
	if err := r.Register("a9k", mock.Factory()); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if err := r.Register("", mock.Factory()); err == nil {
		t.Error("expected empty type to fail")
	}
	if err := r.Register("ds8k", nil); err == nil {
		t.Error("expected nil factory to fail")
	}

	if _, ok := r.Lookup("a9k"); !ok {
		t.Error("a9k should be registered")
	}
	if _, ok := r.Lookup("ds8k"); ok {
		t.Error("ds8k should not be registered")
	}
	if got := r.Types(); !reflect.DeepEqual(got, []string{"a9k", "svc"}) {
		t.Errorf("unexpected types: %v", got)
	}
}

func TestErrorKindThroughWrapping(t *testing.T) {
	base := NewError(KindVolumeNotFound, "volume %s does not exist", "vol1").WithVolume("vol1")
	wrapped := fmt.Errorf("publish: %w", base)

	kind, ok := KindOf(wrapped)
	if !ok || kind != KindVolumeNotFound {
		t.Errorf("expected VolumeNotFound, got %v (ok=%v)", kind, ok)
	}
	if !IsKind(wrapped, KindVolumeNotFound) {
		t.Error("IsKind should see through wrapping")
	}
	if IsKind(errors.New("plain"), KindVolumeNotFound) {
		t.Error("plain errors carry no kind")
	}
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("exit 3")
	err := NewError(KindMappingFailed, "map_vol rejected").WithVolume("vol1").WithHost("host1").Wrap(cause)

	msg := err.Error()
	for _, want := range []string{"MappingFailed", "map_vol rejected", "volume=vol1", "host=host1", "exit 3"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q should contain %q", msg, want)
		}
	}
	if !errors.Is(err, cause) {
		t.Error("Unwrap should expose the cause")
	}
	if ErrorKind(99).String() != "ErrorKind(99)" {
		t.Errorf("unexpected unknown kind string: %s", ErrorKind(99))
	}
}

func TestCredentialsFromSecrets(t *testing.T) {
	creds, err := CredentialsFromSecrets(map[string]string{
		SecretUsername:          "admin",
		SecretPassword:          "pw",
		SecretManagementAddress: "10.0.0.1, 10.0.0.2,,",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(creds.ManagementAddresses, []string{"10.0.0.1", "10.0.0.2"}) {
		t.Errorf("unexpected addresses: %v", creds.ManagementAddresses)
	}
	if strings.Contains(creds.String(), "pw") {
		t.Errorf("String must not print the password: %s", creds)
	}

	for _, missing := range []string{SecretUsername, SecretPassword, SecretManagementAddress} {
		secrets := map[string]string{
			SecretUsername:          "admin",
			SecretPassword:          "pw",
			SecretManagementAddress: "10.0.0.1",
		}
		delete(secrets, missing)
		if _, err := CredentialsFromSecrets(secrets); err == nil {
			t.Errorf("expected error when %s is missing", missing)
		}
	}

	if _, err := CredentialsFromSecrets(map[string]string{
		SecretUsername: "admin", SecretPassword: "pw", SecretManagementAddress: " , ",
	}); err == nil {
		t.Error("expected error for an address list with no entries")
	}
}

func TestPreferredConnectivity(t *testing.T) {
	if got := PreferredConnectivity([]ConnectivityType{ConnectivityISCSI, ConnectivityFC}); got != ConnectivityFC {
		t.Errorf("expected fc, got %s", got)
	}
	if got := PreferredConnectivity([]ConnectivityType{ConnectivityISCSI}); got != ConnectivityISCSI {
		t.Errorf("expected iscsi, got %s", got)
	}
}
