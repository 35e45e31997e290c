package imagemap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-mclib/imageonmap/pkg/imageloader"
	"github.com/go-mclib/imageonmap/pkg/server"
	"github.com/pkg/errors"
)

const helpPage = "§2--- §fShowing ImageOnMap Commands page 1 of 1 §2---\n" +
	"§2/img help §fShows help\n" +
	"§2/img list §fShows available images\n" +
	"§2/img obtain <image> [<cropSize> <x> <y>] §fObtains an image"

func (m *Module) Commands() []*server.Command {
	return []*server.Command{{
		Name:       "image",
		Aliases:    []string{"iom", "img"},
		Permission: Permission,
		Run:        m.runImage,
	}}
}

func (m *Module) runImage(sender server.CommandSender, args []string) error {
	if len(args) == 0 {
		return sender.SendMessage("§cUsage: §7/img help")
	}
	switch strings.ToLower(args[0]) {
	case "help":
		return sender.SendMessage(helpPage)
	case "list":
		return m.list(sender)
	case "obtain", "o":
		return m.obtain(sender, args[1:])
	default:
		return sender.SendMessage("§cUsage: §7/img help")
	}
}

func (m *Module) list(sender server.CommandSender) error {
	names, err := m.Loader.List()
	if err != nil {
		return err
	}
	return sender.SendMessage(fmt.Sprintf("§aAvailable maps: %s §7(%d cached, %s)",
		strings.Join(names, ", "), m.Cache.Len(), humanize.Bytes(uint64(m.Cache.Bytes()))))
}

func (m *Module) obtain(sender server.CommandSender, args []string) error {
	usage := "§cUsage: §7/img o <image> [<cropSize> <x> <y>]"
	if len(args) != 1 && len(args) != 4 {
		return sender.SendMessage(usage)
	}

	crop := imageloader.Crop{Size: 1}
	if len(args) == 4 {
		nums := make([]int, 0, 3)
		for _, a := range args[1:] {
			n, err := strconv.Atoi(a)
			if err != nil {
				return sender.SendMessage("§cOnly numbers could be used to specify crop information")
			}
			nums = append(nums, n)
		}
		crop = imageloader.Crop{Size: nums[0], X: nums[1], Y: nums[2]}
		if crop.Size < 1 {
			return sender.SendMessage("§cCrop size could not be lower than 1")
		}
		if err := crop.Validate(); err != nil {
			return sender.SendMessage(fmt.Sprintf(
				"§cIt is not possible to create chunk of the image with crop size %d at the position of %d:%d",
				crop.Size, crop.X, crop.Y))
		}
	}

	buf, err := m.Loader.Load(args[0], crop)
	switch {
	case errors.Is(err, imageloader.ErrImageNotFound):
		return sender.SendMessage(fmt.Sprintf("§cImage %s was not found", args[0]))
	case errors.Is(err, imageloader.ErrInvalidCrop):
		return sender.SendMessage("§cImage " + args[0] + " is too small for crop size " + strconv.Itoa(crop.Size))
	case err != nil:
		m.server.Logger.WithError(err).Errorf("loading image %s", args[0])
		return sender.SendMessage(fmt.Sprintf("§cImage %s could not be loaded", args[0]))
	}

	id := m.Cache.Allocate(buf)
	m.server.Logger.Infof("%s created map %d from %s (crop %d %d:%d)", sender.Name(), id, buf.Meta().Crop.Source, crop.Size, crop.X, crop.Y)
	for _, cb := range m.onMapCreated {
		cb(sender, id, buf)
	}
	return sender.SendMessage(fmt.Sprintf("§aMap successfully created from the image. §7(map %d)", id))
}
