//go:build pcap
// +build pcap

// Package main inspects a packet capture of the sensor's UDP acquisition
// traffic. It reassembles the block datagrams into complete readings and
// prints a per-frame summary, which is the fastest way to diagnose a
// misbehaving device without the full service running.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/presence.report/internal/detect"
	"github.com/banshee-data/presence.report/internal/sensor"
)

var (
	pcapFile = flag.String("file", "", "PCAP file to analyse")
	udpPort  = flag.Int("port", 61231, "Sensor UDP data port")
	verbose  = flag.Bool("v", false, "Print every block datagram")
)

func main() {
	flag.Parse()
	if *pcapFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	handle, err := pcap.OpenOffline(*pcapFile)
	if err != nil {
		log.Fatalf("Failed to open PCAP file: %v", err)
	}
	defer handle.Close()

	var (
		packets      int
		requests     int
		frames       int
		brokenFrames int

		headerBytes     int
		blockCount      int
		samplesPerBlock int
		datagrams       [][]byte
	)

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range source.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp := udpLayer.(*layers.UDP)
		payload := udp.Payload
		packets++

		// Requests flow toward the device port; they are short ASCII
		// commands and mark frame boundaries.
		if int(udp.DstPort) == *udpPort {
			requests++
			if string(payload) == "-i 1" {
				datagrams = datagrams[:0]
			}
			continue
		}
		if int(udp.SrcPort) != *udpPort {
			continue
		}

		// First reply seen establishes the frame geometry.
		if blockCount == 0 {
			hb, bc, synced, _, err := sensor.DecodeInfo(payload)
			if err != nil {
				log.Printf("skipping undecodable reply: %v", err)
				continue
			}
			headerBytes = hb
			blockCount = bc
			samplesPerBlock = (len(payload) - hb) / 2
			fmt.Printf("handshake: %d blocks/frame, %d-byte header, %d samples/block, synced time %d\n",
				bc, hb, samplesPerBlock, synced)
			continue
		}

		if *verbose {
			fmt.Printf("  block datagram: %d bytes\n", len(payload))
		}
		datagrams = append(datagrams, payload)
		if len(datagrams) < blockCount {
			continue
		}

		frame, err := sensor.DecodeFrame(datagrams, blockCount, headerBytes, samplesPerBlock)
		datagrams = datagrams[:0]
		if err != nil {
			brokenFrames++
			log.Printf("broken frame: %v", err)
			continue
		}
		frames++

		f := detect.Summarize(frame.Samples)
		fmt.Printf("frame %4d: distance %4dcm  device time %d  mean %8.2f  stddev %8.2f  rms %8.2f  peak %6d\n",
			frames, frame.DistanceCm, frame.DeviceTimestamp, f.Mean, f.StdDev, f.RMS, f.Peak)
	}

	fmt.Printf("\n%d packets, %d requests, %d complete frames, %d broken\n",
		packets, requests, frames, brokenFrames)
}
