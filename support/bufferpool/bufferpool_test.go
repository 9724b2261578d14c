// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package bufferpool

import (
	"bytes"
	"testing"
	"testing/iotest"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestBufferPool(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Buffer Pool Tests")
}

var _ = Describe("Pool", func() {
	var bp *Pool

	BeforeEach(func() {
		bp = &Pool{Size: 16}
	})

	It("hands out chunks of the configured size", func() {
		b := bp.Get()
		Expect(b.Bytes()).To(HaveLen(16))
		b.Retain()
		b.Release()
		b.Release()
	})

	It("copies a stream in chunks", func() {
		src := bytes.Repeat([]byte("0123456789"), 10)

		var dst bytes.Buffer
		n, err := bp.Copy(&dst, iotest.HalfReader(bytes.NewReader(src)))
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(int64(len(src))))
		Expect(dst.Bytes()).To(Equal(src))
	})

	It("propagates read errors", func() {
		var dst bytes.Buffer
		_, err := bp.Copy(&dst, iotest.TimeoutReader(bytes.NewReader(make([]byte, 64))))
		Expect(err).To(Equal(iotest.ErrTimeout))
	})
})
