package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/GamechangerTeam/geokurs-form/internal/bitrix"
	"github.com/GamechangerTeam/geokurs-form/internal/diagnostics"
	"github.com/GamechangerTeam/geokurs-form/internal/secret"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type deviceView struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Serial string `json:"serial"`
	Stage  string `json:"stage"`
	DealID int    `json:"dealId"`
}

type productView struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
	SectionID int     `json:"sectionId"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "service": "geokurs-form-backend"})
}

func (s *Server) handleDeviceBySerial(w http.ResponseWriter, r *http.Request) {
	serial := mux.Vars(r)["serial"]

	devices, err := s.catalog.FindDevicesBySerial(r.Context(), serial)
	if err != nil {
		s.internalError(w, r, "device lookup", err)
		return
	}
	if len(devices) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "NOT_FOUND"})
		return
	}

	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, deviceView{
			ID:     d.ID,
			Name:   d.Name,
			Serial: d.Serial,
			Stage:  d.StageID,
			DealID: d.DealID,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleProductSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusOK, []productView{})
		return
	}

	products, err := s.catalog.SearchProductsByName(r.Context(), query)
	if err != nil {
		s.internalError(w, r, "product search", err)
		return
	}
	writeJSON(w, http.StatusOK, productViews(products))
}

func (s *Server) handleProductSections(w http.ResponseWriter, r *http.Request) {
	var sectionIDs []int
	if idsParam := strings.TrimSpace(r.URL.Query().Get("ids")); idsParam != "" {
		for _, part := range strings.Split(idsParam, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				continue
			}
			sectionIDs = append(sectionIDs, id)
		}
	}

	products, err := s.catalog.ProductsFromSections(r.Context(), sectionIDs)
	if err != nil {
		s.internalError(w, r, "section catalog", err)
		return
	}
	writeJSON(w, http.StatusOK, productViews(products))
}

func (s *Server) handleProductSection(w http.ResponseWriter, r *http.Request) {
	sectionID, err := strconv.Atoi(mux.Vars(r)["sectionId"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "BAD_SECTION_ID"})
		return
	}

	products, err := s.catalog.ProductsFromSections(r.Context(), []int{sectionID})
	if err != nil {
		s.internalError(w, r, "section catalog", err)
		return
	}
	writeJSON(w, http.StatusOK, productViews(products))
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	var sub diagnostics.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "malformed payload: " + err.Error()})
		return
	}

	result, err := s.diag.Submit(r.Context(), sub)
	if err != nil {
		code := diagnostics.CodeOf(err)
		s.logger.Warn("diagnostics submission failed",
			zap.String("code", string(code)),
			zap.Error(err),
		)
		writeJSON(w, statusForCode(code), map[string]any{"ok": false, "code": code, "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":              true,
		"deviceId":        result.DeviceID,
		"dealId":          result.DealID,
		"diagnosticQty":   result.DiagnosticQty,
		"verificationQty": result.VerificationQty,
		"repairsAddedQty": result.RepairsAddedQty,
		"partsSum":        result.PartsSum,
		"servicesSum":     result.ServicesSum,
		"totalSum":        result.TotalSum,
	})
}

func (s *Server) handleShip(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ItemID  int    `json:"itemId"`
		Serial  string `json:"serial"`
		StageID string `json:"stageId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "malformed payload"})
		return
	}

	stageID := strings.TrimSpace(body.StageID)
	if stageID == "" {
		stageID = s.cfg.StageSent
	}
	if stageID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "NO_STAGE"})
		return
	}

	id := body.ItemID
	if id == 0 && strings.TrimSpace(body.Serial) != "" {
		devices, err := s.catalog.FindDevicesBySerial(r.Context(), body.Serial)
		if err != nil {
			s.internalError(w, r, "device lookup", err)
			return
		}
		if len(devices) == 0 {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "ITEM_NOT_FOUND"})
			return
		}
		id = devices[0].ID
	}
	if id == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "NO_ITEM"})
		return
	}

	if err := s.catalog.MoveDeviceToStage(r.Context(), id, stageID); err != nil {
		s.internalError(w, r, "stage move", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "itemId": id, "stageId": stageID})
}

func (s *Server) handleItemRowsSet(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.Atoi(mux.Vars(r)["itemId"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "BAD_ITEM_ID"})
		return
	}

	raw, err := decodeRows(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	rows := make([]bitrix.DeviceRow, 0, len(raw))
	for _, in := range raw {
		rows = append(rows, bitrix.DeviceRow{
			ProductID: int(numberFrom(in, "productId", "id", "PRODUCT_ID")),
			Price:     numberFrom(in, "price", "PRICE"),
			Quantity:  quantityFrom(in),
		})
	}

	if err := s.catalog.SetDeviceProductRows(r.Context(), itemID, rows); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "itemId": itemID, "count": len(rows)})
}

func (s *Server) handleDealRowsSet(w http.ResponseWriter, r *http.Request) {
	dealID, err := strconv.Atoi(mux.Vars(r)["dealId"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "BAD_DEAL_ID"})
		return
	}

	raw, err := decodeRows(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	rows := make([]bitrix.ProductRow, 0, len(raw))
	for _, in := range raw {
		id := int(numberFrom(in, "productId", "id", "PRODUCT_ID"))
		if id <= 0 {
			continue
		}
		rows = append(rows, bitrix.ProductRow{
			ProductID: bitrix.FlexID(strconv.Itoa(id)),
			Name:      stringFrom(in, "name", "PRODUCT_NAME"),
			Price:     numberFrom(in, "price", "PRICE"),
			Quantity:  quantityFrom(in),
		})
	}

	if err := s.catalog.SetDealProductRows(r.Context(), dealID, rows); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "dealId": dealID, "count": len(rows)})
}

// handleDealRowsAdd appends one row to the deal through read-append-write,
// subject to the same read-modify-write race as the submission flow.
func (s *Server) handleDealRowsAdd(w http.ResponseWriter, r *http.Request) {
	dealID, err := strconv.Atoi(mux.Vars(r)["dealId"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "BAD_DEAL_ID"})
		return
	}

	var in map[string]any
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "malformed payload"})
		return
	}

	productID := int(numberFrom(in, "productId", "id", "PRODUCT_ID"))
	if productID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "BAD_PRODUCT_ID"})
		return
	}
	price := numberFrom(in, "price", "PRICE")
	quantity := quantityFrom(in)

	existing, err := s.catalog.GetDealProductRows(r.Context(), dealID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	rows := append(existing, bitrix.ProductRow{
		ProductID: bitrix.FlexID(strconv.Itoa(productID)),
		Price:     price,
		Quantity:  quantity,
	})

	if err := s.catalog.SetDealProductRows(r.Context(), dealID, rows); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"dealId": dealID,
		"added":  map[string]any{"productId": productID, "price": price, "quantity": quantity},
	})
}

// handleInit encrypts the submitted webhook link with fresh key material
// and persists it to the env file; the process picks it up on restart.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BxLink string `json:"bx_link"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.BxLink) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":     false,
			"status_msg": "error",
			"message":    "Необходимо предоставить ссылку входящего вебхука!",
		})
		return
	}

	key, iv, err := secret.GenerateKeyIV()
	if err != nil {
		s.internalError(w, r, "init", err)
		return
	}
	encrypted, err := secret.Encrypt(strings.TrimSpace(body.BxLink), key, iv)
	if err != nil {
		s.internalError(w, r, "init", err)
		return
	}
	if err := secret.WriteEnvFile(s.cfg.EnvFile, key, iv, encrypted); err != nil {
		s.internalError(w, r, "init", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     true,
		"status_msg": "success",
		"message":    "Система готова работать с вашим битриксом!",
	})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Error(op+" failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "INTERNAL", "details": err.Error()})
}

func statusForCode(code diagnostics.Code) int {
	switch code {
	case diagnostics.CodeInvalidInput, diagnostics.CodeBadRequest:
		return http.StatusBadRequest
	case diagnostics.CodeNotFound:
		return http.StatusNotFound
	case diagnostics.CodeRemoteCallFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func productViews(products []bitrix.Product) []productView {
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, productView{
			ID:        p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Currency:  p.Currency,
			SectionID: p.SectionID,
		})
	}
	return views
}

func decodeRows(r *http.Request) ([]map[string]any, error) {
	var body struct {
		Rows []map[string]any `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Rows, nil
}

// numberFrom reads the first present numeric value among aliased keys;
// the form and the portal disagree on casing.
func numberFrom(in map[string]any, keys ...string) float64 {
	for _, key := range keys {
		v, ok := in[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return f
			}
		case json.Number:
			if f, err := t.Float64(); err == nil {
				return f
			}
		}
	}
	return 0
}

func stringFrom(in map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := in[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func quantityFrom(in map[string]any) float64 {
	qty := numberFrom(in, "quantity", "qty", "QUANTITY")
	if qty == 0 {
		return 1
	}
	return qty
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
