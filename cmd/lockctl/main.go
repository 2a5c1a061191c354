// Command lockctl is a small interactive operator shell for talking to
// a running lockd instance over its HTTP API: authenticate once, then
// pulse locks and read fleet status without hand-rolling curl commands.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
)

type client struct {
	baseURL string
	http    *http.Client
	token   string
}

func newClient(baseURL string) *client {
	return &client{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *client) login(username, password string) error {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := c.http.Post(c.baseURL+"/api/v1/token", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed: %s", resp.Status)
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	c.token = out.AccessToken
	return nil
}

func (c *client) authedRequest(method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

func (c *client) status() (string, error) {
	resp, err := c.authedRequest(http.MethodGet, "/api/v1/status", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return string(out), err
}

func (c *client) pulse(id string) (string, error) {
	body, _ := json.Marshal(map[string]string{"id": id})
	resp, err := c.authedRequest(http.MethodPost, "/api/v1/pulse", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return string(out), err
}

func main() {
	server := flag.String("server", "http://localhost:8080", "lockd base URL")
	username := flag.String("username", "", "operator username")
	password := flag.String("password", "", "operator password")
	flag.Parse()

	c := newClient(*server)
	if *username != "" && *password != "" {
		if err := c.login(*username, *password); err != nil {
			fmt.Fprintln(os.Stderr, "login:", err)
			os.Exit(1)
		}
	}

	rl, err := readline.New("lockctl> ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "readline:", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Fprintln(rl.Stdout(), "commands: login <user> <pass>, status, pulse <id>, quit")

	for {
		line, err := rl.Readline()
		if err != nil {
			return
		}
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "login":
			if len(fields) != 3 {
				fmt.Fprintln(rl.Stdout(), "usage: login <user> <pass>")
				continue
			}
			if err := c.login(fields[1], fields[2]); err != nil {
				fmt.Fprintln(rl.Stdout(), "error:", err)
				continue
			}
			fmt.Fprintln(rl.Stdout(), "ok")

		case "status":
			out, err := c.status()
			if err != nil {
				fmt.Fprintln(rl.Stdout(), "error:", err)
				continue
			}
			fmt.Fprintln(rl.Stdout(), out)

		case "pulse":
			if len(fields) != 2 {
				fmt.Fprintln(rl.Stdout(), "usage: pulse <id>")
				continue
			}
			out, err := c.pulse(fields[1])
			if err != nil {
				fmt.Fprintln(rl.Stdout(), "error:", err)
				continue
			}
			fmt.Fprintln(rl.Stdout(), out)

		case "quit", "exit":
			return

		default:
			fmt.Fprintln(rl.Stdout(), "unknown command:", fields[0])
		}
	}
}
