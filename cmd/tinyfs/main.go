package main

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"strconv"

	"github.com/keks/tinyfs/blkfile"
	"github.com/keks/tinyfs/config"
	"github.com/keks/tinyfs/fs"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalf("FATAL %v", err)
	}
}

func newApp() *cli.App {
	var cfg config.Config

	return &cli.App{
		Name:  "tinyfs",
		Usage: "manage a tiny file system stored in a single host file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "disk",
				Aliases: []string{"d"},
				Usage:   "host file holding the disk",
			},
			&cli.IntFlag{
				Name:  "block-size",
				Usage: "block size in bytes, must match the one used by mkfs",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log file system diagnostics to stderr",
			},
		},
		Before: func(ctx *cli.Context) error {
			c, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if ctx.IsSet("disk") {
				c.Disk = ctx.String("disk")
			}
			if ctx.IsSet("block-size") {
				c.BlockSize = ctx.Int("block-size")
			}
			if ctx.IsSet("verbose") {
				c.Verbose = ctx.Bool("verbose")
			}
			cfg = *c
			return nil
		},
		Commands: []*cli.Command{{
			Name:  "mkfs",
			Usage: "create an empty file system",
			Flags: []cli.Flag{&cli.IntFlag{
				Name:  "size",
				Usage: "disk size in bytes, rounded down to whole blocks",
			}},
			Action: func(ctx *cli.Context) error {
				if ctx.IsSet("size") {
					cfg.Size = ctx.Int("size")
				}
				if err := cfg.ValidateMkfs(); err != nil {
					return err
				}
				return fs.Mkfs(cfg.Disk, cfg.Size, cfg.BlockSize)
			},
		}, {
			Name:    "ls",
			Aliases: []string{"list", "readdir"},
			Usage:   "list files",
			Action: withSession(&cfg, 0, func(s *fs.Session, ctx *cli.Context) error {
				return s.Walk(func(e fs.DirEntry) error {
					_, err := fmt.Fprintf(
						ctx.App.Writer,
						"%-8s %s %3d blocks (inode %d)\n",
						e.Name,
						e.Permission,
						e.SizeInBlocks,
						e.Block,
					)
					return err
				})
			}),
		}, {
			Name:      "put",
			Usage:     "write a host file into a file, replacing its content",
			ArgsUsage: "NAME HOSTFILE",
			Action: withSession(&cfg, 2, func(s *fs.Session, ctx *cli.Context) error {
				data, err := ioutil.ReadFile(ctx.Args().Get(1))
				if err != nil {
					return fmt.Errorf("reading host file: %w", err)
				}
				fd, err := s.Open(ctx.Args().Get(0))
				if err != nil {
					return err
				}
				return s.WriteFile(fd, data)
			}),
		}, {
			Name:      "cat",
			Usage:     "print the content of a file",
			ArgsUsage: "NAME",
			Action: withSession(&cfg, 1, func(s *fs.Session, ctx *cli.Context) error {
				fd, err := s.OpenExisting(ctx.Args().Get(0))
				if err != nil {
					return err
				}
				data, err := s.ReadAll(fd)
				if err != nil {
					return err
				}
				_, err = ctx.App.Writer.Write(data)
				return err
			}),
		}, {
			Name:      "patch",
			Usage:     "overwrite one byte of a file",
			ArgsUsage: "NAME OFFSET CHAR",
			Action: withSession(&cfg, 3, func(s *fs.Session, ctx *cli.Context) error {
				off, err := strconv.Atoi(ctx.Args().Get(1))
				if err != nil {
					return fmt.Errorf("parsing offset: %w", err)
				}
				char := ctx.Args().Get(2)
				if len(char) != 1 {
					return fmt.Errorf("wanted a single byte; found `%s`", char)
				}
				fd, err := s.OpenExisting(ctx.Args().Get(0))
				if err != nil {
					return err
				}
				return s.WriteByteAt(fd, off, char[0])
			}),
		}, {
			Name:      "rm",
			Aliases:   []string{"delete"},
			Usage:     "delete a file",
			ArgsUsage: "NAME",
			Action: withSession(&cfg, 1, func(s *fs.Session, ctx *cli.Context) error {
				fd, err := s.OpenExisting(ctx.Args().Get(0))
				if err != nil {
					return err
				}
				return s.DeleteFile(fd)
			}),
		}, {
			Name:      "mv",
			Aliases:   []string{"rename"},
			Usage:     "rename a file",
			ArgsUsage: "OLD NEW",
			Action: withSession(&cfg, 2, func(s *fs.Session, ctx *cli.Context) error {
				fd, err := s.OpenExisting(ctx.Args().Get(0))
				if err != nil {
					return err
				}
				return s.Rename(fd, ctx.Args().Get(1))
			}),
		}, {
			Name:      "ro",
			Usage:     "make a file read-only",
			ArgsUsage: "NAME",
			Action: withSession(&cfg, 1, func(s *fs.Session, ctx *cli.Context) error {
				return s.MakeReadOnly(ctx.Args().Get(0))
			}),
		}, {
			Name:      "rw",
			Usage:     "make a file read-write",
			ArgsUsage: "NAME",
			Action: withSession(&cfg, 1, func(s *fs.Session, ctx *cli.Context) error {
				return s.MakeReadWrite(ctx.Args().Get(0))
			}),
		}, {
			Name:      "stat",
			Usage:     "show the metadata of a file",
			ArgsUsage: "NAME",
			Action: withSession(&cfg, 1, func(s *fs.Session, ctx *cli.Context) error {
				fd, err := s.OpenExisting(ctx.Args().Get(0))
				if err != nil {
					return err
				}
				info, err := s.Stat(fd)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(
					ctx.App.Writer,
					"name:     %s\nmode:     %s\nblocks:   %d\n"+
						"created:  %s\nmodified: %s\naccessed: %s\n",
					info.Name,
					info.Permission,
					info.SizeInBlocks,
					info.Created,
					info.Modified,
					info.Accessed,
				)
				return err
			}),
		}, {
			Name:    "frag",
			Aliases: []string{"fragments"},
			Usage:   "show the kind of every block: Super, Inode, Extent, Free",
			Action: withSession(&cfg, 0, func(s *fs.Session, ctx *cli.Context) error {
				return printFragments(s, ctx)
			}),
		}, {
			Name:  "defrag",
			Usage: "compact used blocks toward the start of the disk",
			Action: withSession(&cfg, 0, func(s *fs.Session, ctx *cli.Context) error {
				if err := s.Defragment(); err != nil {
					return err
				}
				return printFragments(s, ctx)
			}),
		}, {
			Name:  "df",
			Usage: "show block usage",
			Action: withSession(&cfg, 0, func(s *fs.Session, ctx *cli.Context) error {
				total, err := s.TotalBlocks()
				if err != nil {
					return err
				}
				free, err := s.FreeBlocks()
				if err != nil {
					return err
				}
				blksize, err := s.BlockSize()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(
					ctx.App.Writer,
					"%d blocks of %d bytes, %d used, %d free\n",
					total,
					blksize,
					total-free,
					free,
				)
				return err
			}),
		}},
	}
}

func printFragments(s *fs.Session, ctx *cli.Context) error {
	m, err := s.FragmentMap()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(ctx.App.Writer, m)
	return err
}

// withSession mounts the configured disk around f after checking that
// exactly nargs arguments were given.
func withSession(
	cfg *config.Config,
	nargs int,
	f func(*fs.Session, *cli.Context) error,
) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		if ctx.Args().Len() != nargs {
			return fmt.Errorf(
				"wanted `%d` arguments; found `%d`",
				nargs,
				ctx.Args().Len(),
			)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		dev, err := blkfile.Open(cfg.Disk, 0, cfg.BlockSize)
		if err != nil {
			return err
		}
		defer dev.Close()

		s := &fs.Session{}
		if cfg.Verbose {
			s.Log = log.New(ctx.App.ErrWriter, "tinyfs: ", 0)
		}
		if err := s.Mount(dev); err != nil {
			return err
		}
		defer s.Unmount()

		return f(s, ctx)
	}
}
