// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package stagingdir

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestStagingDir(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Staging Directory Tests")
}

var _ = Describe("F", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "stagingdir_test")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("commits into place, replacing an existing file", func() {
		dest := filepath.Join(dir, "out", "a.rfr")
		Expect(WriteFile(dest, []byte("old"))).To(Succeed())
		Expect(WriteFile(dest, []byte("new"))).To(Succeed())

		data, err := os.ReadFile(dest)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(Equal("new"))

		entries, err := os.ReadDir(filepath.Dir(dest))
		Expect(err).ToNot(HaveOccurred())
		Expect(entries).To(HaveLen(1))
	})

	It("leaves nothing behind when destroyed", func() {
		sf, err := New(dir, "x")
		Expect(err).ToNot(HaveOccurred())
		_, err = sf.WriteString("partial")
		Expect(err).ToNot(HaveOccurred())

		Expect(sf.Destroy()).To(Succeed())
		Expect(sf.Destroy()).To(Succeed())
		Expect(sf.Commit(filepath.Join(dir, "y"))).ToNot(Succeed())

		entries, err := os.ReadDir(dir)
		Expect(err).ToNot(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})
})
