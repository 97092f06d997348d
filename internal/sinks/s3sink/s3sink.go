// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package s3sink drena o lado receptor de um beam.Beam para um upload
// multipart no S3, seguindo o mesmo padrão do AtomicWriter local: os bytes
// recebidos se acumulam em memória e só na confirmação (EOS) são enviados
// e o objeto se torna visível — um ErrorChunk ou um abort do beam encerra o
// dreno antes de qualquer envio, sem deixar um objeto incompleto.
package s3sink

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nishisan-dev/nbeam/beam"
)

// minPartSize é o menor tamanho de parte aceito pelo S3 para uploads
// multipart (exceto a última parte).
const minPartSize = 5 * 1024 * 1024

// Sink recebe de um beam.Beam e envia os bytes consumidos como um upload
// multipart para o bucket/key configurados.
type Sink struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	key      string
}

// New cria um Sink sobre client, mirando bucket/key. O uploader interno
// agrupa os chunks recebidos em partes de ao menos minPartSize antes de
// enviá-las, exceto pela última.
func New(client *s3.Client, bucket, key string) *Sink {
	return &Sink{
		client: client,
		bucket: bucket,
		key:    key,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = minPartSize
		}),
	}
}

// Drain consome b inteiramente a partir de caller, reportando o consumo de
// cada chunk recebido (via ReportConsumption) e liberando proxies assim que
// seus bytes tiverem sido copiados para o corpo do upload. Retorna o status
// terminal do beam (StatusEndOfFile em sucesso) e um erro, se houver.
//
// Um ErrorChunk recebido do emissor interrompe o dreno e retorna o erro
// carregado no chunk; o objeto nunca é confirmado nesse caso.
func (s *Sink) Drain(ctx context.Context, b *beam.Beam, caller beam.Endpoint) (beam.Status, error) {
	var body bytes.Buffer

	for {
		received, status, err := b.Receive(ctx, caller, true, 0)
		if err != nil {
			return status, err
		}

		for _, r := range received {
			chunk := r.Chunk
			switch chunk.Kind() {
			case beam.KindMetaEOS:
				if r.Proxy != nil {
					r.Proxy.Release()
				}
				return s.finish(ctx, &body)
			case beam.KindMetaFlush:
				if r.Proxy != nil {
					r.Proxy.Release()
				}
				continue
			case beam.KindMetaError:
				if errPayload, ok := chunk.(beam.ErrorPayload); ok {
					return beam.StatusAborted, fmt.Errorf("s3sink: sender reported error %d: %s", errPayload.StatusCode(), errPayload.Diagnostic())
				}
				return beam.StatusAborted, fmt.Errorf("s3sink: sender reported an error")
			}

			if _, err := s.consume(ctx, &body, r); err != nil {
				return beam.StatusAborted, err
			}
			b.ReportConsumption()
		}

		if status == beam.StatusEndOfFile {
			return s.finish(ctx, &body)
		}
		if status == beam.StatusAborted {
			return status, beam.ErrBeamClosed
		}
	}
}

// bytesReader é satisfeita por HeapChunk e MmapChunk: dados já residentes
// em memória do processo, sem necessidade de materialização assíncrona.
type bytesReader interface {
	Bytes() []byte
}

func (s *Sink) consume(ctx context.Context, body *bytes.Buffer, r beam.Received) (int, error) {
	chunk := r.Chunk
	if r.Proxy != nil {
		defer r.Proxy.Release()
		borrowed, st := r.Proxy.Chunk()
		if st != beam.StatusOK {
			return 0, fmt.Errorf("s3sink: proxy chunk unavailable: %s", st)
		}
		chunk = borrowed
	}

	if br, ok := chunk.(bytesReader); ok {
		return body.Write(br.Bytes())
	}

	if mat, ok := chunk.(beam.Materializer); ok {
		data, err := mat.Materialize(ctx)
		if err != nil {
			return 0, fmt.Errorf("s3sink: materializing chunk: %w", err)
		}
		return body.Write(data)
	}

	if cp, ok := chunk.(beam.Copier); ok {
		copied, err := cp.CopyOut(ctx)
		if err != nil {
			return 0, fmt.Errorf("s3sink: copying chunk: %w", err)
		}
		if br, ok := copied.(bytesReader); ok {
			return body.Write(br.Bytes())
		}
	}

	return 0, fmt.Errorf("s3sink: chunk kind %v has no readable payload", chunk.Kind())
}

func (s *Sink) finish(ctx context.Context, body *bytes.Buffer) (beam.Status, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Body:   bytes.NewReader(body.Bytes()),
	})
	if err != nil {
		return beam.StatusAborted, fmt.Errorf("s3sink: completing upload: %w", err)
	}
	return beam.StatusEndOfFile, nil
}
