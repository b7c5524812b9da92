package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"brawlarena.ai/internal/presence"
)

type usersReply struct {
	Sessions int              `json:"sessions"`
	Users    []presence.Entry `json:"users"`
}

// usersCmd asks a running relay for its users collection. The endpoint only
// answers loopback callers, so this is meant to run on the relay host.
func usersCmd(args []string) {
	fs := flag.NewFlagSet("users", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	raw := fs.Bool("json", false, "print the raw response")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/users"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		fmt.Fprintf(os.Stderr, "%s: %s\n", resp.Status, strings.TrimSpace(string(body)))
		os.Exit(1)
	}
	if *raw {
		fmt.Println(string(body))
		return
	}
	if err := printUsers(os.Stdout, body); err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}
}

func printUsers(w io.Writer, body []byte) error {
	var rep usersReply
	if err := json.Unmarshal(body, &rep); err != nil {
		return err
	}
	fmt.Fprintf(w, "sessions=%d users=%d\n", rep.Sessions, len(rep.Users))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tCHARACTER\tREADY\tADMIN\tINDEX\tPOS")
	for _, e := range rep.Users {
		r := e.Record
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%d\t%.2f,%.2f,%.2f\n",
			e.Key, r.Character, r.Ready, r.IsRoomAdmin, r.UserIndex, r.Pos.X, r.Pos.Y, r.Pos.Z)
	}
	return tw.Flush()
}
