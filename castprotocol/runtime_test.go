package castprotocol

import (
	"context"
	"testing"
	"time"

	"go2tv.app/castsync/coordinator"
	"go2tv.app/castsync/framework"
)

func TestBootstrapSignalsAvailability(t *testing.T) {
	available := make(chan bool, 1)
	rt := NewRuntime()

	if err := rt.Bootstrap(func(av bool) { available <- av }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case av := <-available:
		if !av {
			t.Fatal("expected the linked runtime to report available")
		}
	case <-time.After(time.Second):
		t.Fatal("availability hook never fired")
	}
}

func TestConfigureRejectsEmptyAppID(t *testing.T) {
	if _, err := NewRuntime().Configure(framework.Config{}); err == nil {
		t.Fatal("expected an error for an empty application id")
	}
}

func TestSDKInitializeReportsSuccess(t *testing.T) {
	sdk, err := NewRuntime().Configure(framework.Config{AppID: "app-1", AutoJoin: framework.AutoJoinOriginScoped})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	succeeded := false
	err = sdk.Initialize(coordinator.APIConfig{
		AppID:     "app-1",
		OnSuccess: func() { succeeded = true },
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !succeeded {
		t.Fatal("expected the success hook to run")
	}
}

func TestSDKNotifyReceiversFansOut(t *testing.T) {
	sdk, err := NewRuntime().Configure(framework.Config{AppID: "app-1"})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	castSDK := sdk.(*SDK)

	// Without a registered listener the notification is dropped.
	castSDK.NotifyReceivers(true)

	var got []coordinator.ReceiverAvailability
	err = sdk.Initialize(coordinator.APIConfig{
		ReceiverListener: func(av coordinator.ReceiverAvailability) { got = append(got, av) },
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	castSDK.NotifyReceivers(true)
	castSDK.NotifyReceivers(false)

	if len(got) != 2 || got[0] != coordinator.ReceiverAvailable || got[1] != coordinator.ReceiverUnavailable {
		t.Fatalf("unexpected availability events: %v", got)
	}
}

func TestRequestSessionRequiresInitialize(t *testing.T) {
	sdk, err := NewRuntime().Configure(framework.Config{AppID: "app-1"})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	castSDK := sdk.(*SDK)

	if err := castSDK.RequestSession(context.Background(), "192.168.1.50:8009"); err == nil {
		t.Fatal("expected request session before initialize to fail")
	}
}

func TestCurrentSessionAbsentByDefault(t *testing.T) {
	sdk, err := NewRuntime().Configure(framework.Config{AppID: "app-1"})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if _, ok := sdk.CurrentSession(); ok {
		t.Fatal("expected no current session before any request")
	}
}
