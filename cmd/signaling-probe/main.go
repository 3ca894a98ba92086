/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Command signaling-probe connects to a signaling gateway, joins the
// call namespace, and prints every call event it receives. Useful for
// verifying gateway reachability and event delivery during deployments.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dentalio/callkit-go/callsdk"
	"github.com/dentalio/callkit-go/signaling"
)

func main() {
	var (
		url       = flag.String("url", os.Getenv("SIGNAL_URL"), "gateway websocket URL (ws:// or wss://)")
		userID    = flag.String("user", "probe", "user id to join as")
		namespace = flag.String("namespace", signaling.DefaultNamespace, "presence namespace")
	)
	flag.Parse()

	if *url == "" {
		fmt.Println("usage: signaling-probe -url ws://gateway:4000/socket [-user id]")
		os.Exit(1)
	}

	fmt.Printf("[1/3] Connecting to %s...\n", *url)
	socket := signaling.NewSocket(*url, nil)
	socket.SetOnConnect(func() {
		fmt.Println("  connected, joining namespace...")
		join := signaling.JoinPayload{UserID: *userID, UserRole: callsdk.RoleDoctor, UserName: "Probe"}
		if err := socket.Emit(signaling.JoinEvent(*namespace), join); err != nil {
			fmt.Printf("ERROR joining: %v\n", err)
		}
	})

	events := []string{
		signaling.EventIncomingCall,
		signaling.EventCallAccepted,
		signaling.EventCallRejected,
		signaling.EventCallEnded,
		signaling.EventIceCandidate,
		signaling.EventCallFailed,
	}
	fmt.Printf("[2/3] Subscribing to %d call events...\n", len(events))
	for _, event := range events {
		event := event
		socket.On(event, func(raw json.RawMessage) {
			var pretty map[string]interface{}
			if err := json.Unmarshal(raw, &pretty); err != nil {
				fmt.Printf("<- %s (unparseable: %v)\n", event, err)
				return
			}
			// Session descriptions are huge; show only their type.
			if sig, ok := pretty["signal"].(map[string]interface{}); ok {
				pretty["signal"] = fmt.Sprintf("<%v>", sig["type"])
			}
			fmt.Printf("<- %s %v\n", event, pretty)
		})
	}

	if err := socket.Connect(); err != nil {
		fmt.Printf("ERROR connecting: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("[3/3] Listening. Ctrl-C to exit.")
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("closing...")
	if err := socket.Close(); err != nil {
		fmt.Printf("ERROR closing: %v\n", err)
	}
}
