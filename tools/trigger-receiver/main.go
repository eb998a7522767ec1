// trigger-receiver is a development stand-in for the downstream trigger
// collaborator (notification bridge, lighting rule engine). It accepts fire
// payloads on /fire, verifies the HMAC signature when SECRET is set, and
// exposes simple stats for manual testing.
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

type payload struct {
	Kind          string `json:"kind"`
	AlarmID       int32  `json:"alarm_id"`
	ExecutionID   string `json:"execution_id"`
	ShiftID       string `json:"shift_id"`
	ShiftName     string `json:"shift_name"`
	FormattedTime string `json:"formatted_time"`
	ScheduledAt   string `json:"scheduled_at"`
	FiredAt       string `json:"fired_at"`
}

type received struct {
	Timestamp   string  `json:"timestamp"`
	AttemptID   string  `json:"attempt_id"`
	ExecutionID string  `json:"execution_id"`
	Verified    bool    `json:"verified"`
	Payload     payload `json:"payload"`
}

type stats struct {
	Count     int64      `json:"count"`
	Alarms    int64      `json:"alarms"`
	Skipped   int64      `json:"skipped"`
	BadSig    int64      `json:"bad_signatures"`
	LastFires []received `json:"last_fires"`
	Since     string     `json:"since"`
}

var (
	mu        sync.Mutex
	total     int64
	alarms    int64
	skipped   int64
	badSig    int64
	lastFires []received
	since     time.Time
	maxStored = 50
	secret    string
)

func main() {
	since = time.Now().UTC()
	secret = os.Getenv("SECRET")
	if secret == "" {
		log.Println("trigger-receiver: SECRET not set; signatures will not be verified")
	}

	addr := ":9000"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}

	http.HandleFunc("/fire", fireHandler)
	http.HandleFunc("/stats", statsHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	http.HandleFunc("/reset", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		total, alarms, skipped, badSig = 0, 0, 0, 0
		lastFires = nil
		since = time.Now().UTC()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "reset")
	})

	log.Printf("trigger-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func fireHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	verified := true
	if secret != "" {
		signature := r.Header.Get("X-Shiftwake-Signature")
		verified = verifySignature(secret, body, signature)
		if !verified {
			mu.Lock()
			badSig++
			mu.Unlock()
			log.Printf("fire rejected: bad signature (attempt=%s)", r.Header.Get("X-Shiftwake-Event-ID"))
			http.Error(w, "bad signature", http.StatusUnauthorized)
			return
		}
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	rec := received{
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		AttemptID:   r.Header.Get("X-Shiftwake-Event-ID"),
		ExecutionID: r.Header.Get("X-Shiftwake-Execution-ID"),
		Verified:    verified,
		Payload:     p,
	}

	mu.Lock()
	total++
	switch p.Kind {
	case "alarm":
		alarms++
	case "skipped":
		skipped++
	}
	lastFires = append(lastFires, rec)
	if len(lastFires) > maxStored {
		lastFires = lastFires[len(lastFires)-maxStored:]
	}
	current := total
	mu.Unlock()

	log.Printf("fire #%d: kind=%s alarm=%d shift=%q at=%s", current, p.Kind, p.AlarmID, p.ShiftName, p.FormattedTime)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"received":%d}`, current)
}

func statsHandler(w http.ResponseWriter, _ *http.Request) {
	mu.Lock()
	s := stats{
		Count:     total,
		Alarms:    alarms,
		Skipped:   skipped,
		BadSig:    badSig,
		LastFires: lastFires,
		Since:     since.Format(time.RFC3339),
	}
	mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

func verifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
