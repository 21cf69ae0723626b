package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"runtime/pprof"
	"time"

	"github.com/tactum/tactum"
	"github.com/tactum/tactum/engine"
	"github.com/tactum/tactum/engine/gomidi"
	"github.com/tactum/tactum/oto"
	"github.com/tactum/tactum/synth"
	"github.com/tactum/tactum/transport"
	"github.com/tactum/tactum/version"
)

var (
	configFile  = flag.String("config", "", "read parameters from `file` (yaml); defaults apply otherwise")
	midiOutput  = flag.String("midi-output", "", "send to MIDI output with matching device name prefix instead of the internal synth")
	listMidi    = flag.Bool("list-midi", false, "list MIDI output devices and exit")
	listenAddr  = flag.String("listen", "", "accept the touch stream on TCP `addr` instead of stdin")
	cpuprofile  = flag.String("cpuprofile", "", "write cpu profile to `file`")
	versionFlag = flag.Bool("v", false, "print version and exit")
)

func main() {
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if *listMidi {
		midiBackend := gomidi.NewBackend()
		midiBackend.OutputDevices(func(name string) bool {
			fmt.Println(name)
			return true
		})
		midiBackend.Close()
		os.Exit(0)
	}
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	params := tactum.DefaultParams()
	if *configFile != "" {
		f, err := os.Open(*configFile)
		if err != nil {
			log.Fatalf("could not open config %v: %v", *configFile, err)
		}
		params, err = tactum.ReadParams(f)
		f.Close()
		if err != nil {
			log.Fatalf("could not read config %v: %v", *configFile, err)
		}
	}

	broker := engine.NewBroker()
	var backend tactum.Backend
	var audioCloser io.Closer
	if *midiOutput != "" {
		midiBackend := gomidi.NewBackend()
		if err := midiBackend.Open(*midiOutput); err != nil {
			log.Fatalf("could not open MIDI output: %v", err)
		}
		defer midiBackend.Close()
		backend = midiBackend
	} else {
		audioContext, err := oto.NewContext()
		if err != nil {
			log.Fatalf("could not acquire audio context: %v", err)
		}
		defer audioContext.Close()
		player := synth.NewPlayer(broker, synth.New(oto.SampleRate))
		audioCloser = audioContext.Play(func(buf tactum.AudioBuffer) error {
			player.Process(buf)
			return nil
		})
		backend = engine.NewBrokerBackend(broker)
	}

	eng := engine.NewEngine(&params, backend, broker)

	samples := make(chan engine.Sample, 64)
	go readSamples(samples, broker)
	go drainModel(broker)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	// the engine is single-writer: samples and flush ticks are serialized
	// here, never handed to another goroutine
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	var lastSample time.Duration
	var lastArrival time.Time
loop:
	for {
		select {
		case smp, ok := <-samples:
			if !ok {
				break loop
			}
			lastSample, lastArrival = smp.Time, time.Now()
			eng.Process(&smp)
		case <-ticker.C:
			if !lastArrival.IsZero() {
				eng.Flush(lastSample + time.Since(lastArrival))
			}
		case <-interrupt:
			break loop
		}
	}
	eng.Reset()
	close(broker.CloseTransport)
	if audioCloser != nil {
		audioCloser.Close()
	}
}

// readSamples feeds the transport into the sample channel until the stream
// ends or the broker tells it to stop.
func readSamples(samples chan<- engine.Sample, broker *engine.Broker) {
	defer close(samples)
	defer close(broker.FinishedTransport)
	var r io.Reader = os.Stdin
	if *listenAddr != "" {
		ln, err := net.Listen("tcp", *listenAddr)
		if err != nil {
			log.Printf("could not listen on %v: %v", *listenAddr, err)
			return
		}
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("could not accept touch stream: %v", err)
			return
		}
		defer conn.Close()
		r = conn
	}
	source := transport.NewReader(r)
	var smp engine.Sample
	for {
		err := source.Next(&smp)
		if err == io.EOF {
			return
		}
		if err != nil {
			log.Printf("touch stream: %v", err)
			continue
		}
		select {
		case samples <- smp:
		case <-broker.CloseTransport:
			return
		}
	}
}

// drainModel keeps the model channel from filling up and surfaces alerts.
// There is no GUI in this binary, so state updates are simply discarded.
func drainModel(broker *engine.Broker) {
	for msg := range broker.ToModel {
		if alert, ok := msg.Data.(engine.Alert); ok {
			log.Printf("%v: %v", alert.Name, alert.Message)
		}
	}
}
