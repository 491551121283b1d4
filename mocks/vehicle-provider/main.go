package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	defaultPort      = "8085"
	defaultAPIKey    = "vehicle-provider-secret-key"
	defaultLatencyMs = "50"
)

var (
	apiKey    = getEnv("API_KEY", defaultAPIKey)
	latencyMs = getEnvInt("LATENCY_MS", defaultLatencyMs)
)

// Magic registrations let e2e runs drive each provider outcome.
const (
	regNotFound  = "NOTFOUND1"
	regRateLimit = "RATELIMIT1"
	regOutage    = "OUTAGE1"
	regDiagram   = "DIAGRAM1"
	regNoImage   = "NOIMAGE1"
	regSlow      = "SLOW1"
)

// jpegHeader is enough of a JFIF header for content sniffing.
var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0xFF, 0xD9}

func main() {
	port := getEnv("PORT", defaultPort)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /r2/lookup", handleVDGLookup)
	mux.HandleFunc("GET /v1/vehicles/{registration}/images", handleHaynesImages)
	mux.HandleFunc("GET /pages/{registration}", handleListingPage)

	log.Printf("Mock vehicle provider starting on port %s", port)
	log.Printf("API key: %s", apiKey)
	log.Printf("Simulated latency: %dms", latencyMs)
	log.Printf("Magic registrations: %s (404) %s (429) %s (503) %s (diagram) %s (no image) %s (slow)",
		regNotFound, regRateLimit, regOutage, regDiagram, regNoImage, regSlow)

	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "vehicle-provider",
		"version": "1.0.0",
	})
}

// failFor writes the scripted failure for a magic registration and reports
// whether it did.
func failFor(w http.ResponseWriter, reg string) bool {
	switch reg {
	case regNotFound:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "no vehicle for " + reg})
	case regRateLimit:
		w.Header().Set("Retry-After", "60")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate_limited", "message": "slow down"})
	case regOutage:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "unavailable", "message": "upstream maintenance"})
	case regSlow:
		time.Sleep(30 * time.Second)
		return false
	default:
		return false
	}
	return true
}

func handleVDGLookup(w http.ResponseWriter, r *http.Request) {
	simulateLatency()
	q := r.URL.Query()
	if q.Get("apikey") != apiKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized", "message": "invalid api key"})
		return
	}
	reg := normalize(q.Get("key_VRM"))
	if reg == regNotFound {
		// VDG reports misses in-band.
		writeJSON(w, http.StatusOK, map[string]any{
			"ResponseInformation": map[string]any{
				"IsSuccessStatusCode": false,
				"StatusMessage":       "NoMatchFound",
			},
		})
		return
	}
	if failFor(w, reg) {
		return
	}

	results := map[string]any{
		"VehicleDetails": map[string]any{
			"VehicleIdentification": map[string]any{
				"Vrm":               reg,
				"DvlaMake":          "FORD",
				"DvlaModel":         "FOCUS ZETEC",
				"DvlaFuelType":      "PETROL",
				"YearOfManufacture": 2019,
			},
			"VehicleHistory": map[string]any{
				"ColourDetails": map[string]any{"CurrentColour": "BLUE"},
			},
			"DvlaTechnicalDetails": map[string]any{"EngineCapacityCc": 998},
		},
		"MotHistoryDetails": map[string]any{"MotDueDate": "2027-03-14"},
	}
	if reg != regDiagram && reg != regNoImage {
		results["VehicleImageDetails"] = map[string]any{
			"VehicleImageList": []map[string]any{
				{"ImageUrl": fmt.Sprintf("https://cdn.vdg.example/images/%s.jpg", strings.ToLower(reg))},
			},
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ResponseInformation": map[string]any{"IsSuccessStatusCode": true, "StatusMessage": "Success"},
		"Results":             results,
	})
}

func handleHaynesImages(w http.ResponseWriter, r *http.Request) {
	simulateLatency()
	if r.Header.Get("X-API-Key") != apiKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized", "message": "invalid api key"})
		return
	}
	reg := normalize(r.PathValue("registration"))
	if failFor(w, reg) {
		return
	}
	switch reg {
	case regDiagram:
		writeJSON(w, http.StatusOK, map[string]any{"images": []map[string]string{
			{"type": "diagram", "url": "https://haynes.example/diagrams/" + reg + ".svg"},
		}})
	case regNoImage:
		writeJSON(w, http.StatusOK, map[string]any{"images": []map[string]string{}})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"images": []map[string]string{
			{"type": "photo", "mimeType": "image/jpeg", "data": base64.StdEncoding.EncodeToString(jpegHeader)},
		}})
	}
}

func handleListingPage(w http.ResponseWriter, r *http.Request) {
	simulateLatency()
	reg := normalize(r.PathValue("registration"))
	if failFor(w, reg) {
		return
	}
	image := fmt.Sprintf("https://listings.example/photos/%s-front.jpg", strings.ToLower(reg))
	switch reg {
	case regDiagram:
		image = "/static/engine-schematic.png"
	case regNoImage:
		image = ""
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!doctype html><html><head><title>%s</title>", reg)
	if image != "" {
		fmt.Fprintf(w, `<meta property="og:image" content="%s">`, image)
	}
	fmt.Fprint(w, `</head><body><img src="/static/logo.png" alt="logo">`)
	if image != "" {
		fmt.Fprintf(w, `<img data-src="%s" alt="vehicle">`, image)
	}
	fmt.Fprint(w, "</body></html>")
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

func simulateLatency() {
	if latencyMs > 0 {
		time.Sleep(time.Duration(latencyMs) * time.Millisecond)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key, fallback string) int {
	n, err := strconv.Atoi(getEnv(key, fallback))
	if err != nil {
		return 0
	}
	return n
}
