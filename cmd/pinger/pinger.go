// The pinger program is a reachability probe for the hosts the aggregator
// depends on: the radio box and the pubsub frontend, plus a couple of
// landmarks to tell "our link is down" from "their end is down". Output is
// one CSV line, meant for cron + a log file.
//
// go run ./cmd/pinger -hosts=radiopi,8.8.8.8

package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	fastping "github.com/tatsushid/go-fastping"
)

var timeout = time.Second * 10

var hosts []string

func init() {
	hostcsv := ""
	flag.StringVar(&hostcsv, "hosts", "", "comma-sep hosts to probe (appended to the defaults)")
	flag.Parse()

	hosts = []string{"8.8.8.8", "pubsub.googleapis.com"}
	if h := os.Getenv("RADIO_HOST"); h != "" {
		hosts = append(hosts, h)
	}
	for _, h := range strings.Split(hostcsv, ",") {
		if h != "" {
			hosts = append(hosts, h)
		}
	}
}

func main() {
	sort.Strings(hosts)

	p := fastping.NewPinger()
	p.Network("udp")
	p.MaxRTT = timeout

	addrs := map[string]string{} // resolved addr -> hostname
	for _, host := range hosts {
		ra, err := net.ResolveIPAddr("ip4:icmp", host)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		addrs[ra.String()] = host
		p.AddIPAddr(ra)
	}

	results := map[string]string{}

	p.OnRecv = func(addr *net.IPAddr, rtt time.Duration) {
		results[addrs[addr.String()]] = fmt.Sprintf("%.0f", rtt.Seconds()*1000) // integer millis
	}

	if err := p.Run(); err != nil {
		fmt.Printf("p.Run failed with: %v", err)
	}

	strs := []string{time.Now().UTC().Format(time.RFC3339)}

	for _, host := range hosts {
		strs = append(strs, host)
		if v, exists := results[host]; exists {
			strs = append(strs, fmt.Sprintf("%-7.7s", v))
		} else {
			strs = append(strs, "timeout")
		}
	}

	fmt.Printf(strings.Join(strs, ", ") + "\n")
}
