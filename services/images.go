package services

import (
	"strconv"
	"strings"
)

// Larguras usadas pelo feed.
const (
	FeaturedImageWidth = 1200
	GridImageWidth     = 600
)

// OptimizedImageURL monta a URL de fetch do Cloudinary que redimensiona a
// imagem para width. Uma URL que já passa pelo CDN é reaproveitada sem
// empilhar transformações. URL vazia continua vazia.
func OptimizedImageURL(cdnBase, url string, width int) string {
	if url == "" || cdnBase == "" {
		return url
	}
	base := strings.TrimRight(cdnBase, "/") + "/"
	path := url
	if strings.HasPrefix(url, base) {
		path = strings.TrimPrefix(url, base)
		if i := strings.Index(path, "/"); i >= 0 && strings.HasPrefix(path, "c_scale,") {
			path = path[i+1:]
		}
	}
	return base + "c_scale,w_" + strconv.Itoa(width) + ",f_auto,q_auto/" + path
}
