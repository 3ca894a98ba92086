/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package callkit

import (
	"testing"
	"time"

	"github.com/dentalio/callkit-go/callsdk"
	"github.com/dentalio/callkit-go/media"
	"github.com/dentalio/callkit-go/signaling"
)

func TestNew_RequiresIdentity(t *testing.T) {
	_, err := New(callsdk.Identity{}, &Config{SignalURL: "ws://localhost:4000"})
	if err == nil {
		t.Error("expected an error for a missing user id")
	}
}

func TestNew_RequiresTransport(t *testing.T) {
	_, err := New(callsdk.Identity{UserID: "doc-1"}, &Config{})
	if err == nil {
		t.Error("expected an error when neither SignalURL nor Channel is set")
	}
}

func TestClient_ConnectRegistersPresence(t *testing.T) {
	gw := signaling.NewInProcessGateway(signaling.DefaultNamespace, nil)
	defer gw.Close()

	client, err := New(callsdk.Identity{UserID: "doc-1", UserName: "Dr. V", UserRole: callsdk.RoleDoctor}, &Config{
		Channel:  gw.Connect(),
		Acquirer: media.NewStaticAcquirer(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer client.Close()

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !gw.Registered("doc-1") {
		if time.Now().After(deadline) {
			t.Fatal("identity never registered with the gateway")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClient_CallingIsSingleton(t *testing.T) {
	gw := signaling.NewInProcessGateway(signaling.DefaultNamespace, nil)
	defer gw.Close()

	client, err := New(callsdk.Identity{UserID: "doc-1"}, &Config{
		Channel:  gw.Connect(),
		Acquirer: media.NewStaticAcquirer(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer client.Close()

	if client.Calling() != client.Calling() {
		t.Error("Calling() built two call clients")
	}
}
