package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wb_catalog_v1_202610/internal/model"
)

func TestImageURLs(t *testing.T) {
	assert.Equal(t, []string{
		"M/images/c516x688/1.webp",
		"M/images/c516x688/2.webp",
		"M/images/c516x688/3.webp",
	}, ImageURLs("M", 3))

	assert.Equal(t, []string{}, ImageURLs("M", 0))
	assert.Equal(t, []string{}, ImageURLs("M", -1))
}

func TestParseAssets(t *testing.T) {
	payload := `{
		"description": "Тёплое пальто",
		"options": [
			{"name": "Цвет", "value": "серый"},
			{"name": "Состав", "value": "шерсть 100%"},
			{"name": "", "value": "без названия"},
			{"name": "Без значения"},
			{"name": "Цвет", "value": "черный"},
			{"name": "Длина", "value": 110}
		],
		"media": {"photo_count": 2}
	}`

	b, err := ParseAssets("https://basket-21.test/vol1/part100/100000", []byte(payload))
	require.NoError(t, err)
	require.NotNil(t, b.Description)
	assert.Equal(t, "Тёплое пальто", *b.Description)
	assert.Equal(t, model.Characteristics{
		{Name: "Цвет", Value: "черный"},
		{Name: "Состав", Value: "шерсть 100%"},
		{Name: "Длина", Value: "110"},
	}, b.Characteristics)
	assert.Equal(t, []string{
		"https://basket-21.test/vol1/part100/100000/images/c516x688/1.webp",
		"https://basket-21.test/vol1/part100/100000/images/c516x688/2.webp",
	}, b.Images)
	assert.False(t, b.Degraded)
}

func TestParseAssets_Minimal(t *testing.T) {
	b, err := ParseAssets("M", []byte(`{"imt_id":1}`))
	require.NoError(t, err)
	assert.Nil(t, b.Description)
	assert.Empty(t, b.Characteristics)
	assert.Empty(t, b.Images)
}

func TestParseAssets_Malformed(t *testing.T) {
	_, err := ParseAssets("M", []byte(`{"options":"x"}`))
	assert.Error(t, err)
}

func TestAssetService_Resolve(t *testing.T) {
	network := newMirrorNetwork(`{"description":"d","options":[{"name":"Цвет","value":"серый"}],"media":{"photo_count":3}}`, 27)
	mirrors := NewMirrorService(newFakeFetcher(network.handle), nil, testMirrorConfig(), nil)
	svc := NewAssetService(mirrors, nil)

	b := svc.Resolve(context.Background(), 123456789)
	assert.False(t, b.Degraded)
	require.NotNil(t, b.Description)
	assert.Equal(t, "d", *b.Description)
	assert.Equal(t, []string{
		"https://basket-27.test/vol1234/part123456/123456789/images/c516x688/1.webp",
		"https://basket-27.test/vol1234/part123456/123456789/images/c516x688/2.webp",
		"https://basket-27.test/vol1234/part123456/123456789/images/c516x688/3.webp",
	}, b.Images)
}

func TestAssetService_NoMirrorDegrades(t *testing.T) {
	network := newMirrorNetwork(`{"a":1}`)
	mirrors := NewMirrorService(newFakeFetcher(network.handle), nil, testMirrorConfig(), nil)
	svc := NewAssetService(mirrors, nil)

	b := svc.Resolve(context.Background(), 123456789)
	assert.True(t, b.Degraded)
	assert.Nil(t, b.Description)
	assert.Empty(t, b.Characteristics)
	assert.Empty(t, b.Images)
}

func TestAssetService_BadPayloadDegrades(t *testing.T) {
	network := newMirrorNetwork(`{"media":{"photo_count":"many"}}`, 20)
	mirrors := NewMirrorService(newFakeFetcher(network.handle), nil, testMirrorConfig(), nil)

	b := NewAssetService(mirrors, nil).Resolve(context.Background(), 1)
	assert.True(t, b.Degraded)
	assert.Empty(t, b.Images)
}
