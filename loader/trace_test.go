package loader_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cachemodel/loader"
	"github.com/sarchlab/cachemodel/timing/cache"
)

var _ = Describe("Trace Loader", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "trace-loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	Describe("Simple format", func() {
		It("should parse reads and writes", func() {
			input := `
# sample
read,0x1000
write,2000
READ, 0X3F

w,ff
`
			accesses, err := loader.Parse(strings.NewReader(input))

			Expect(err).NotTo(HaveOccurred())
			Expect(accesses).To(Equal([]cache.Access{
				{Addr: 0x1000, Kind: cache.Read},
				{Addr: 0x2000, Kind: cache.Write},
				{Addr: 0x3F, Kind: cache.Read},
				{Addr: 0xFF, Kind: cache.Write},
			}))
		})

		DescribeTable("should reject malformed lines with their line number",
			func(input string, line int) {
				_, err := loader.Parse(strings.NewReader(input))

				var parseErr *loader.ParseError
				Expect(errors.As(err, &parseErr)).To(BeTrue())
				Expect(parseErr.Line).To(Equal(line))
			},
			Entry("missing comma", "read 0x10\n", 1),
			Entry("unknown kind", "read,0x10\nfetch,0x20\n", 2),
			Entry("bad address", "write,0xZZ\n", 1),
			Entry("negative address", "# c\nread,-0x10\n", 2),
		)

		It("should report negative addresses as range errors", func() {
			_, err := loader.ParseAddr("-1")

			Expect(errors.Is(err, cache.ErrAddressRange)).To(BeTrue())
			var rangeErr *cache.AddressRangeError
			Expect(errors.As(err, &rangeErr)).To(BeTrue())
			Expect(rangeErr.Negative).To(BeTrue())
		})

		It("should write traces that parse back", func() {
			accesses := []cache.Access{
				{Addr: 0x0, Kind: cache.Read},
				{Addr: 0xdeadbeef, Kind: cache.Write},
				{Addr: 0x7ff000398, Kind: cache.Read},
			}

			var buf bytes.Buffer
			Expect(loader.WriteTrace(&buf, accesses)).To(Succeed())
			Expect(buf.String()).To(Equal(
				"read,0\nwrite,deadbeef\nread,7ff000398\n"))

			parsed, err := loader.Parse(&buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(Equal(accesses))
		})

		It("should save and load files", func() {
			path := filepath.Join(tempDir, "trace.txt")
			accesses := []cache.Access{{Addr: 0x40, Kind: cache.Write}}

			Expect(loader.SaveTrace(path, accesses)).To(Succeed())
			loaded, err := loader.Load(path)

			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(accesses))
		})

		It("should return error for non-existent file", func() {
			_, err := loader.Load(filepath.Join(tempDir, "missing.txt"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Lackey format", func() {
		It("should split instruction and data streams", func() {
			input := `==1234== Lackey, an example Valgrind tool
==1234== Command: ./a.out
I  04001290,3
 S 7ff000398,8
 L 04222cac,8
 M 0421f0c8,4
I  04001293,5
garbage line here
 X 1234,4
==1234== exiting
`
			trace, err := loader.ParseLackey(strings.NewReader(input))

			Expect(err).NotTo(HaveOccurred())
			Expect(trace.Instruction).To(Equal([]cache.Access{
				{Addr: 0x04001290, Kind: cache.Read},
				{Addr: 0x04001293, Kind: cache.Read},
			}))
			Expect(trace.Data).To(Equal([]cache.Access{
				{Addr: 0x7ff000398, Kind: cache.Write},
				{Addr: 0x04222cac, Kind: cache.Read},
				{Addr: 0x0421f0c8, Kind: cache.Read},
				{Addr: 0x0421f0c8, Kind: cache.Write},
			}))
		})

		It("should load lackey logs from disk", func() {
			path := filepath.Join(tempDir, "results.txt")
			Expect(os.WriteFile(path, []byte("I  10,4\n L 20,8\n"), 0644)).To(Succeed())

			trace, err := loader.LoadLackey(path)

			Expect(err).NotTo(HaveOccurred())
			Expect(trace.Instruction).To(HaveLen(1))
			Expect(trace.Data).To(HaveLen(1))
		})
	})

	Describe("Formats", func() {
		It("should parse format names", func() {
			f, err := loader.ParseFormat("Lackey")
			Expect(err).NotTo(HaveOccurred())
			Expect(f).To(Equal(loader.FormatLackey))
			Expect(f.String()).To(Equal("lackey"))

			f, err = loader.ParseFormat("")
			Expect(err).NotTo(HaveOccurred())
			Expect(f).To(Equal(loader.FormatSimple))

			_, err = loader.ParseFormat("pin")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Replay", func() {
		var c *cache.Cache

		BeforeEach(func() {
			c = cache.MustNew(cache.Config{
				Name:          "replay",
				Size:          1024,
				BlockSize:     64,
				Associativity: 2,
				Policy:        cache.PolicyLRU,
				AddressWidth:  16,
			})
		})

		It("should feed accesses in order", func() {
			Expect(loader.Replay(c, []cache.Access{
				{Addr: 0x100, Kind: cache.Read},
				{Addr: 0x100, Kind: cache.Write},
				{Addr: 0x140, Kind: cache.Read},
			})).To(Succeed())

			stats := c.Stats()
			Expect(stats.Totals.Reads).To(Equal(uint64(2)))
			Expect(stats.Totals.Writes).To(Equal(uint64(1)))
			Expect(stats.Hits()).To(Equal(uint64(1)))
		})

		It("should stop at the first rejected access", func() {
			err := loader.Replay(c, []cache.Access{
				{Addr: 0x100, Kind: cache.Read},
				{Addr: 0x10000, Kind: cache.Read},
				{Addr: 0x200, Kind: cache.Read},
			})

			Expect(errors.Is(err, cache.ErrAddressRange)).To(BeTrue())
			Expect(err.Error()).To(HavePrefix("access 1 "))
			Expect(c.Stats().Totals.Sum()).To(Equal(uint64(1)))
		})
	})
})
