// Command slicectlcli is the thin interactive CLI: a plain HTTP client of
// the control-plane API with no state of its own. Menu: 1 allocate, 2
// deallocate, 3 exit.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type tunnelDTO struct {
	TunnelID      int64    `json:"tunnel_id"`
	Path          []string `json:"path"`
	Rate          int      `json:"rate"`
	TCPPort       int      `json:"tcp_port"`
	Bidirectional bool     `json:"bidirectional"`
	SrcIP         string   `json:"src_ip"`
	DstIP         string   `json:"dst_ip"`
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	baseURL := os.Getenv("SLICECTL_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	if _, err := client.Get(baseURL + "/healthz"); err != nil {
		fmt.Fprintln(os.Stderr, "slicectlcli: control plane unreachable at", baseURL)
		os.Exit(2)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Println("\n1) allocate  2) deallocate  3) exit")
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "1":
			if err := allocate(client, baseURL, scanner); err != nil {
				fmt.Println("error:", err)
			}
		case "2":
			if err := deallocate(client, baseURL, scanner); err != nil {
				fmt.Println("error:", err)
			}
		case "3":
			return
		default:
			fmt.Println("invalid choice")
		}
	}
}

func allocate(client *http.Client, baseURL string, scanner *bufio.Scanner) error {
	src := prompt(scanner, "src: ")
	dst := prompt(scanner, "dst: ")
	k, err := promptInt(scanner, "k: ")
	if err != nil {
		return err
	}
	rate, err := promptInt(scanner, "rate (Mbps): ")
	if err != nil {
		return err
	}

	body, _ := json.Marshal(map[string]any{
		"src": src, "dst": dst, "k": k, "rate": rate, "bidirectional": true,
	})
	resp, err := client.Post(baseURL+"/v1/tunnels", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("agent unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var apiErr apiError
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("[%s] %s", apiErr.Error.Code, apiErr.Error.Message)
	}

	var tun tunnelDTO
	if err := json.NewDecoder(resp.Body).Decode(&tun); err != nil {
		return err
	}
	fmt.Printf("allocated tunnel %d on port %d, path %s\n", tun.TunnelID, tun.TCPPort, strings.Join(tun.Path, ","))
	return nil
}

func deallocate(client *http.Client, baseURL string, scanner *bufio.Scanner) error {
	resp, err := client.Get(baseURL + "/v1/tunnels")
	if err != nil {
		return fmt.Errorf("agent unreachable: %w", err)
	}
	var tunnels []tunnelDTO
	if err := json.NewDecoder(resp.Body).Decode(&tunnels); err != nil {
		resp.Body.Close()
		return err
	}
	resp.Body.Close()

	if len(tunnels) == 0 {
		fmt.Println("no active tunnels")
		return nil
	}
	for _, t := range tunnels {
		fmt.Printf("  %d: %s (rate=%d port=%d)\n", t.TunnelID, strings.Join(t.Path, ","), t.Rate, t.TCPPort)
	}

	id, err := promptInt(scanner, "tunnel_id: ")
	if err != nil {
		return err
	}

	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/v1/tunnels/%d", baseURL, id), nil)
	delResp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("agent unreachable: %w", err)
	}
	defer delResp.Body.Close()

	if delResp.StatusCode != http.StatusOK {
		var apiErr apiError
		json.NewDecoder(delResp.Body).Decode(&apiErr)
		return fmt.Errorf("[%s] %s", apiErr.Error.Code, apiErr.Error.Message)
	}
	fmt.Println("deallocated tunnel", id)
	return nil
}

func prompt(scanner *bufio.Scanner, label string) string {
	fmt.Print(label)
	scanner.Scan()
	return strings.TrimSpace(scanner.Text())
}

func promptInt(scanner *bufio.Scanner, label string) (int, error) {
	raw := prompt(scanner, label)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid input: %q is not an integer", raw)
	}
	return n, nil
}
