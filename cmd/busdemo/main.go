// Command busdemo wires up a single MessageBus instance exercising all
// three patterns end to end: a ticker publishing market ticks, a task
// worker pushing results off a PULL loop, and a state query answered by
// a REP loop. It is a runnable demonstration, not a deployment tool.
//
// Configuration loading strategy:
//  1. Command line argument: load the named YAML file.
//  2. No argument: DefaultConfig().
//
// Called by: operator invocation (go run ./cmd/busdemo).
// Calls: messagebus.New and every MessageBus operation.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gaochengzhi/snail-trader/messagebus"
)

func main() {
	var cfg messagebus.Config
	var configSource string

	if len(os.Args) >= 2 {
		loadedCfg, err := messagebus.LoadConfig(os.Args[1])
		if err != nil {
			log.Fatalf("Failed to load config from %s: %v", os.Args[1], err)
		}
		cfg = loadedCfg
		configSource = "config file: " + os.Args[1]
	} else {
		cfg = messagebus.DefaultConfig()
		cfg.Debug = true
		cfg.Logger = log.Default()
		configSource = "hardcoded defaults"
	}

	log.Printf("Starting busdemo using %s", configSource)

	bus, err := messagebus.New(cfg)
	if err != nil {
		log.Fatalf("Failed to construct bus: %v", err)
	}

	bus.RegisterHandler("ticks.price", messagebus.CooperativeHandler(func(topic string, payload interface{}) {
		log.Printf("tick on %q: %v", topic, payload)
	}))

	go func() {
		if err := bus.SubscribeLoop(messagebus.PortGlobalEvents, []string{"ticks."}); err != nil {
			log.Printf("subscribe loop exited: %v", err)
		}
	}()

	go func() {
		if err := bus.PullResultsLoop(messagebus.PortTaskResults, func(payload interface{}) {
			log.Printf("task result: %v", payload)
		}); err != nil {
			log.Printf("pull loop exited: %v", err)
		}
	}()

	go func() {
		err := bus.ResponseLoop(messagebus.PortStateManagement, func(req interface{}) (interface{}, error) {
			return map[string]interface{}{"echo": req}, nil
		})
		if err != nil {
			log.Printf("response loop exited: %v", err)
		}
	}()

	// Brief delay lets the subscriber, pull and responder sockets come up
	// before the ticker starts publishing.
	time.Sleep(200 * time.Millisecond)

	tickerDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		n := 0
		for {
			select {
			case <-ticker.C:
				n++
				bus.Publish("ticks.price", map[string]interface{}{"n": n}, messagebus.PortGlobalEvents)
				bus.PushResult(map[string]interface{}{"n": n}, messagebus.PortTaskResults)
				reply, _ := bus.Request(map[string]interface{}{"n": n}, messagebus.PortStateManagement)
				log.Printf("state reply: %v", reply)
			case <-tickerDone:
				return
			}
		}
	}()

	log.Printf("busdemo running: pub/sub on %d, push/pull on %d, req/rep on %d",
		messagebus.PortGlobalEvents, messagebus.PortTaskResults, messagebus.PortStateManagement)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Printf("shutting down...")
	close(tickerDone)

	if err := bus.Cleanup(true); err != nil {
		log.Printf("cleanup error: %v", err)
	}
	log.Printf("metrics: %s", bus.GetMetrics())
}
