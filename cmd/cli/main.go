package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"graderelay/internal/gitlab"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  cli [flags] push <server-url> <project-path> <sha>")
	flag.PrintDefaults()
	os.Exit(1)
}

// Posts a hand-built push hook to a running server, for smoke testing the
// relay without a GitLab instance.
func main() {
	branch := flag.String("branch", "main", "pushed branch")
	token := flag.String("token", "", "value for the X-Gitlab-Token header")
	flag.Parse()

	args := flag.Args()
	if len(args) < 4 || args[0] != "push" {
		usage()
	}
	serverURL, project, sha := args[1], args[2], args[3]

	hook := gitlab.PushEvent{
		ObjectKind:  "push",
		Ref:         "refs/heads/" + *branch,
		After:       sha,
		CheckoutSHA: sha,
		UserName:    "cli",
		ProjectID:   1,
		Project: gitlab.Project{
			Name:              project,
			PathWithNamespace: project,
			WebURL:            "http://localhost/" + project,
		},
	}
	body, err := json.Marshal(hook)
	if err != nil {
		fmt.Println("Failed to encode hook:", err)
		os.Exit(1)
	}

	req, err := http.NewRequest(http.MethodPost, serverURL+"/push", bytes.NewReader(body))
	if err != nil {
		fmt.Println("Failed to build request:", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	if *token != "" {
		req.Header.Set("X-Gitlab-Token", *token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Println("Failed to send request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	fmt.Println("Server response:", resp.Status, string(out))
}
