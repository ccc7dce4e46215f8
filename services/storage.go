package services

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"apoioufu/config"
)

// MaxImageSize é o maior arquivo de imagem aceito.
const MaxImageSize = 5 << 20

var (
	// ErrStorageDisabled indica MinIO não configurado.
	ErrStorageDisabled = errors.New("armazenamento de imagens desabilitado")
	// ErrNotAnImage indica arquivo que não é imagem ou grande demais.
	ErrNotAnImage = errors.New("envie uma imagem de até 5 MB")
)

// StorageService guarda as imagens das notícias no MinIO.
type StorageService struct {
	client     *minio.Client
	bucketName string
	baseURL    string
}

// FileInfo descreve uma imagem armazenada.
type FileInfo struct {
	FileName    string    `json:"file_name"`
	FileSize    int64     `json:"file_size"`
	ContentType string    `json:"content_type"`
	URL         string    `json:"url"`
	Hash        string    `json:"hash"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// NewStorageService usa o cliente MinIO global; nil se desabilitado.
func NewStorageService() *StorageService {
	client := config.GetMinIOClient()
	if client == nil {
		return nil
	}
	conf := config.GetMinIOConfig()
	return &StorageService{
		client:     client,
		bucketName: conf.BucketName,
		baseURL:    publicBaseURL(conf),
	}
}

// UploadImage grava a imagem em imagens/<md5><ext>. Conteúdo repetido
// devolve o objeto já existente.
func (s *StorageService) UploadImage(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*FileInfo, error) {
	if s == nil {
		return nil, ErrStorageDisabled
	}
	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") || header.Size <= 0 || header.Size > MaxImageSize {
		return nil, ErrNotAnImage
	}

	hash, err := fileHash(file)
	if err != nil {
		return nil, fmt.Errorf("calcular hash: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	fileName := objectName(hash, header.Filename)
	if stat, err := s.client.StatObject(ctx, s.bucketName, fileName, minio.StatObjectOptions{}); err == nil {
		return &FileInfo{
			FileName:    fileName,
			FileSize:    stat.Size,
			ContentType: stat.ContentType,
			URL:         s.fileURL(fileName),
			Hash:        hash,
			UploadedAt:  stat.LastModified,
		}, nil
	}

	info, err := s.client.PutObject(ctx, s.bucketName, fileName, file, header.Size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("enviar imagem: %w", err)
	}
	return &FileInfo{
		FileName:    fileName,
		FileSize:    info.Size,
		ContentType: contentType,
		URL:         s.fileURL(fileName),
		Hash:        hash,
		UploadedAt:  time.Now(),
	}, nil
}

// DeleteImage remove o objeto.
func (s *StorageService) DeleteImage(ctx context.Context, fileName string) error {
	if s == nil {
		return ErrStorageDisabled
	}
	if err := s.client.RemoveObject(ctx, s.bucketName, fileName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remover imagem: %w", err)
	}
	return nil
}

func fileHash(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func objectName(hash, original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	return "imagens/" + hash + ext
}

func publicBaseURL(conf config.MinIOConfig) string {
	if conf.PublicURL != "" {
		return strings.TrimRight(conf.PublicURL, "/")
	}
	protocol := "http"
	if conf.UseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s", protocol, conf.Endpoint, conf.BucketName)
}

func (s *StorageService) fileURL(fileName string) string {
	return s.baseURL + "/" + fileName
}
