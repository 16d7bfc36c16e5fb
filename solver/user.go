package solver

import (
	"os/exec"
	"os/user"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
)

// RunAs makes cmd run with the uid, gid and supplementary groups of the
// named user, with HOME and USER pointing at that user.
func RunAs(cmd *exec.Cmd, username string) error {
	u, err := user.Lookup(username)
	if err != nil {
		return errors.WithStack(err)
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return errors.Wrapf(err, "uid of %s", username)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return errors.Wrapf(err, "gid of %s", username)
	}
	groups := []uint32{}
	if ids, err := u.GroupIds(); err == nil {
		for _, id := range ids {
			if g, err := strconv.ParseUint(id, 10, 32); err == nil {
				groups = append(groups, uint32(g))
			}
		}
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Credential = &syscall.Credential{
		Uid:    uint32(uid),
		Gid:    uint32(gid),
		Groups: groups,
	}
	cmd.Env = append(cmd.Env, "HOME="+u.HomeDir, "USER="+u.Username)
	return nil
}
