package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const baseURL = "http://localhost:8080"

// Smoke client driving the full trading flow against a running server.
func main() {
	// Wait for server to start
	time.Sleep(2 * time.Second)

	// 1. Health check
	checkEndpoint("GET", "/health", "", nil, 200)

	// 2. Register a fresh user
	username := fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	access := register(username, "hunter2")
	fmt.Printf("Registered %s\n", username)

	// 3. Login again
	login(username, "hunter2")

	// 4. Deposit cash
	checkEndpoint("POST", "/deposit", access, map[string]interface{}{"amount": "500.00"}, 200)

	// 5. Quote lookup
	checkEndpoint("GET", "/quote/AAPL", access, nil, 200)

	// 6. Buy shares
	checkEndpoint("POST", "/buy", access, map[string]interface{}{"symbol": "AAPL", "shares": 2}, 200)

	// 7. Portfolio with live valuation
	checkEndpoint("GET", "/portfolio", access, nil, 200)

	// 8. Sell them back
	checkEndpoint("POST", "/sell", access, map[string]interface{}{"symbol": "AAPL", "shares": 2}, 200)

	// 9. History shows DEPOSIT, BUY, SELL
	checkEndpoint("GET", "/history", access, nil, 200)

	fmt.Println("ALL TESTS PASSED")
}

func checkEndpoint(method, path, token string, body interface{}, expectedStatus int) []byte {
	fmt.Printf("Testing %s %s...\n", method, path)
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, baseURL+path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != expectedStatus {
		log.Fatalf("Expected status %d, got %d. Body: %s", expectedStatus, resp.StatusCode, string(respBody))
	}
	fmt.Printf("Response: %s\n", string(respBody))
	return respBody
}

func register(username, password string) string {
	body := checkEndpoint("POST", "/register", "", map[string]interface{}{
		"username":     username,
		"password":     password,
		"confirmation": password,
	}, 201)
	var res map[string]interface{}
	json.Unmarshal(body, &res)
	token, _ := res["access_token"].(string)
	if token == "" {
		log.Fatal("register returned no access token")
	}
	return token
}

func login(username, password string) {
	checkEndpoint("POST", "/login", "", map[string]interface{}{
		"username": username,
		"password": password,
	}, 200)
}
