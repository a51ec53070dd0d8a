package store

import (
	"encoding/json"

	"signalserver/internal/types"
)

type assetInfoDTO struct {
	ID        string `json:"id"`
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"`
}

func encodeAssetInfo(a types.AssetInfo) ([]byte, error) {
	return json.Marshal(assetInfoDTO{ID: a.ID, Price: a.Price.String(), Timestamp: a.Timestamp})
}

func decodeAssetInfo(data []byte, out *types.AssetInfo) error {
	var dto assetInfoDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return err
	}
	price, err := types.ParsePrice(dto.Price)
	if err != nil {
		return err
	}
	out.ID = dto.ID
	out.Price = price
	out.Timestamp = dto.Timestamp
	return nil
}

func encodeQueryIDs(ids map[string]struct{}) ([]byte, error) {
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return json.Marshal(out)
}

func decodeQueryIDs(data []byte, out map[string]struct{}) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return nil
}

func encodeActiveSignalIDs(ids []string) ([]byte, error) {
	return json.Marshal(ids)
}

func decodeActiveSignalIDs(data []byte, out *[]string) error {
	return json.Unmarshal(data, out)
}
